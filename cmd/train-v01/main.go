// Command train-v01 trains model version v0.1 and writes its artifact.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/triage.report/internal/training"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := training.RunCommand(ctx, "v0.1", os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("train v0.1: %v", err)
	}
}

// Command triage-serve serves one trained model version over HTTP and gRPC.
//
//	triage-serve [flags]                 serve
//	triage-serve migrate <action> [args] manage the run ledger schema
//	triage-serve probe [flags]           check a running server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/triage.report/internal/api"
	"github.com/banshee-data/triage.report/internal/artifact"
	"github.com/banshee-data/triage.report/internal/config"
	"github.com/banshee-data/triage.report/internal/dataset"
	"github.com/banshee-data/triage.report/internal/db"
	"github.com/banshee-data/triage.report/internal/httputil"
	"github.com/banshee-data/triage.report/internal/rpc"
	"github.com/banshee-data/triage.report/internal/serving"
	"github.com/banshee-data/triage.report/internal/version"
)

const defaultLedger = "triage_runs.db"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("triage-serve: %v", err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "migrate":
			fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
			fs.SetOutput(out)
			ledger := fs.String("ledger", defaultLedger, "SQLite run ledger")
			if err := fs.Parse(args[1:]); err != nil {
				return err
			}
			return db.RunMigrateCommand(fs.Args(), *ledger, out)
		case "probe":
			return probe(ctx, args[1:], out)
		case "version":
			fmt.Fprintln(out, version.String())
			return nil
		}
	}
	return serve(ctx, args, out)
}

type serveConfig struct {
	listen     string
	grpcListen string
	modelsDir  string
	version    string
	ledger     string
}

func parseServeFlags(args []string, out io.Writer) (*serveConfig, error) {
	fs := flag.NewFlagSet("triage-serve", flag.ContinueOnError)
	fs.SetOutput(out)
	c := &serveConfig{}
	fs.StringVar(&c.listen, "listen", ":8080", "HTTP listen address")
	fs.StringVar(&c.grpcListen, "grpc-listen", "", "gRPC listen address (disabled when empty)")
	fs.StringVar(&c.modelsDir, "models", config.DefaultModelsDir, "Artifact root directory")
	fs.StringVar(&c.version, "model-version", "v0.3", "Model version to serve")
	fs.StringVar(&c.ledger, "ledger", "", "SQLite run ledger for /api/runs and the debug pages")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments %v", fs.Args())
	}
	return c, nil
}

// setup loads the configured model version and builds the HTTP handler.
// It refuses to continue when the artifact cannot be loaded.
func setup(c *serveConfig) (*serving.Handle, http.Handler, func(), error) {
	store := artifact.NewStore(c.modelsDir)
	handle, err := serving.NewLoader(store).Get(c.version)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Printf("serving model %s (%s, holdout rmse %.4f, run %s)",
		handle.Version(), handle.Metadata().Algorithm,
		handle.Metadata().Metrics.RMSEHoldout, handle.Metadata().RunID)

	cleanup := func() {}
	var runs api.RunLister
	var ledger *db.DB
	if c.ledger != "" {
		ledger, err = db.NewDB(c.ledger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open ledger: %w", err)
		}
		runs = ledger
		cleanup = func() { ledger.Close() }
	}

	server := api.NewServer(handle, store, runs)
	mux := server.ServeMux()
	server.AttachAdminRoutes(mux)
	if ledger != nil {
		ledger.AttachAdminRoutes(mux)
	}
	return handle, api.LoggingMiddleware(mux), cleanup, nil
}

func serve(ctx context.Context, args []string, out io.Writer) error {
	c, err := parseServeFlags(args, out)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	handle, handler, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	var lis net.Listener
	if c.grpcListen != "" {
		if lis, err = net.Listen("tcp", c.grpcListen); err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Start(ctx, c.listen, handler)
	})
	if lis != nil {
		srv := rpc.NewServer(handle)
		g.Go(func() error {
			return rpc.Serve(ctx, srv, lis)
		})
	}
	return g.Wait()
}

// probe checks /health on a running server and, with -predict, sends one
// synthetic observation.
func probe(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(out)
	base := fs.String("url", "http://localhost:8080", "Server base URL")
	predict := fs.Bool("predict", false, "Also send a synthetic prediction request")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := api.NewClient(*base, httputil.NewStandardClient(nil))
	health, err := client.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "status=%s model_version=%s\n", health.Status, health.ModelVersion)
	if !*predict {
		return nil
	}
	y, v, err := client.Predict(ctx, dataset.Synthetic(1, 1).Vector(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "prediction=%.4f model_version=%s\n", y, v)
	return nil
}

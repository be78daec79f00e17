package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/triage.report/internal/features"
)

// Client calls a RiskScore service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Predict sends v and returns the prediction and serving version.
func (c *Client) Predict(ctx context.Context, v features.Vector, opts ...grpc.CallOption) (float64, string, error) {
	fields := make(map[string]interface{}, features.Count)
	for i, name := range features.Names {
		fields[name] = v[i]
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return 0, "", err
	}
	return c.PredictStruct(ctx, in, opts...)
}

// PredictStruct sends a raw request object.
func (c *Client) PredictStruct(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (float64, string, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PredictMethod, in, out, opts...); err != nil {
		return 0, "", err
	}
	pred, ok := out.GetFields()["prediction"]
	if !ok {
		return 0, "", fmt.Errorf("response has no prediction")
	}
	return pred.GetNumberValue(), out.GetFields()["model_version"].GetStringValue(), nil
}

// ModelInfo returns the served model's metadata as a generic object.
func (c *Client) ModelInfo(ctx context.Context, opts ...grpc.CallOption) (map[string]interface{}, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ModelInfoMethod, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

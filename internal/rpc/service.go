// Package rpc exposes the loaded model over gRPC. Messages are
// google.protobuf.Struct values keyed by feature name, so the service needs
// no generated code:
//
//	triage.v1.RiskScore/Predict   {"age": .., ..., "s6": ..} -> {"prediction": .., "model_version": ..}
//	triage.v1.RiskScore/ModelInfo Empty -> metadata object
//
// The standard grpc.health.v1 service is registered alongside.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/triage.report/internal/features"
	"github.com/banshee-data/triage.report/internal/inference"
	"github.com/banshee-data/triage.report/internal/serving"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "triage.v1.RiskScore"

// Full method names.
const (
	PredictMethod   = "/" + ServiceName + "/Predict"
	ModelInfoMethod = "/" + ServiceName + "/ModelInfo"
)

// RiskScoreServer is the server API of the RiskScore service.
type RiskScoreServer interface {
	Predict(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ModelInfo(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes the RiskScore service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RiskScoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: predictHandler},
		{MethodName: "ModelInfo", Handler: modelInfoHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "triage/v1/risk_score",
}

func predictHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RiskScoreServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PredictMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RiskScoreServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func modelInfoHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RiskScoreServer).ModelInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ModelInfoMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RiskScoreServer).ModelInfo(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Service implements RiskScoreServer for one loaded model.
type Service struct {
	handle *serving.Handle
}

// NewService returns a Service backed by handle.
func NewService(handle *serving.Handle) *Service {
	return &Service{handle: handle}
}

// Predict validates the request object against the feature contract and
// returns the prediction. Invalid input maps to codes.InvalidArgument.
func (s *Service) Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	y, err := inference.PredictMap(s.handle.Model(), req.AsMap())
	switch {
	case errors.Is(err, features.ErrInvalidInput):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case err != nil:
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(map[string]interface{}{
		"prediction":    y,
		"model_version": s.handle.Version(),
	})
}

// ModelInfo returns the loaded model's metadata record.
func (s *Service) ModelInfo(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	md := s.handle.Metadata()
	b, err := json.Marshal(md)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode metadata: %v", err))
	}
	return out, nil
}

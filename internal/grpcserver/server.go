// Package grpcserver implements the AlertService gRPC server.
//
// It delegates to alert.Runner and alert.Service and handles only the
// transport concerns: metadata extraction, error mapping and conversion
// between domain values and google.protobuf.Struct messages.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"jobmate/alert-service/internal/alert"
	"jobmate/alert-service/internal/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "jobmate.alerts.v1.AlertService"

// Full method names, usable with grpc.ClientConn.Invoke.
const (
	MethodRunBatch  = "/" + ServiceName + "/RunBatch"
	MethodTestAlert = "/" + ServiceName + "/TestAlert"
)

// Runner is the part of *alert.Runner the server uses.
type Runner interface {
	RunBatch(ctx context.Context, cadence model.Cadence, now time.Time) (*alert.RunReport, error)
	RunOne(ctx context.Context, id string, preview bool) (*alert.SingleRun, error)
}

// AlertServiceServer is the server API for AlertService.
type AlertServiceServer interface {
	RunBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TestAlert(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Server implements AlertServiceServer.
type Server struct {
	runner     Runner
	svc        *alert.Service
	adminToken string
	log        *zap.Logger
}

// NewServer constructs a gRPC Server.
func NewServer(runner Runner, svc *alert.Service, adminToken string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{runner: runner, svc: svc, adminToken: adminToken, log: log}
}

// Register mounts s on gs.
func Register(gs grpc.ServiceRegistrar, s AlertServiceServer) {
	gs.RegisterService(&serviceDesc, s)
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// RunBatch runs one cadence batch. Request: {"cadence": "daily"}.
func (s *Server) RunBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.checkAdmin(ctx); err != nil {
		return nil, err
	}
	cadence, err := model.ParseCadence(req.GetFields()["cadence"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	report, err := s.runner.RunBatch(ctx, cadence, time.Now().UTC())
	if err != nil {
		return nil, s.toGRPCError(err)
	}
	return toStruct(report)
}

// TestAlert runs one of the caller's alerts now. Request:
// {"alertId": "...", "preview": true}.
func (s *Server) TestAlert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	fields := req.GetFields()
	id := fields["alertId"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "alertId is required")
	}
	if _, err := s.svc.Get(ctx, userID, id); err != nil {
		return nil, s.toGRPCError(err)
	}
	run, err := s.runner.RunOne(ctx, id, fields["preview"].GetBoolValue())
	if err != nil {
		return nil, s.toGRPCError(err)
	}
	return toStruct(run)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// userIDFromCtx extracts the x-user-id value forwarded by the Gateway
// via gRPC metadata.
func userIDFromCtx(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("x-user-id")
	if len(vals) == 0 || vals[0] == "" {
		return "", status.Error(codes.Unauthenticated, "missing x-user-id metadata")
	}
	return vals[0], nil
}

func (s *Server) checkAdmin(ctx context.Context) error {
	if s.adminToken == "" {
		return nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	if vals := md.Get("x-admin-token"); len(vals) == 0 || vals[0] != s.adminToken {
		return status.Error(codes.Unauthenticated, "invalid admin token")
	}
	return nil
}

// toGRPCError maps domain errors to gRPC status errors.
func (s *Server) toGRPCError(err error) error {
	var (
		ve *alert.ValidationError
		ce *alert.CatalogUnavailableError
	)
	switch {
	case errors.Is(err, alert.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Msg)
	case errors.Is(err, alert.ErrBatchInProgress), errors.Is(err, alert.ErrInactive):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &ce):
		return status.Error(codes.Unavailable, "job catalog unavailable")
	}
	s.log.Error("rpc failed", zap.Error(err))
	return status.Error(codes.Internal, "internal server error")
}

// toStruct converts v through its JSON form so the wire shape matches the
// HTTP responses.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}

// ─── Service descriptor ──────────────────────────────────────────────────────

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AlertServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunBatch", Handler: unaryHandler(MethodRunBatch, AlertServiceServer.RunBatch)},
		{MethodName: "TestAlert", Handler: unaryHandler(MethodTestAlert, AlertServiceServer.TestAlert)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "jobmate/alerts/v1/alerts.proto",
}

type unaryMethod func(AlertServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AlertServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AlertServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

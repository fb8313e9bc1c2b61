// Package grpcserver implements the MatchService gRPC server.
//
// It delegates all business logic to discovery.Service and handles only the
// gRPC transport concerns: metadata extraction, error mapping, and
// conversion between google.protobuf.Struct messages and the domain types.
// Messages are Structs carrying the same JSON shape as the HTTP API, so no
// generated stubs are needed.
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
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"jobmate/match-service/internal/discovery"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "jobmate.match.v1.MatchService"

// Service is the part of *discovery.Service used by the server.
type Service interface {
	Discover(ctx context.Context, req discovery.Request) (*discovery.Response, error)
	DiscoverSearchConfig(ctx context.Context, userID, configID string, forceLive bool) (*discovery.Response, error)
}

// MatchServiceServer is the server API of MatchService.
type MatchServiceServer interface {
	Discover(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	DiscoverSearchConfig(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// Server implements MatchServiceServer.
type Server struct {
	svc Service
	log *zap.Logger
}

// NewServer constructs a gRPC Server backed by the given Service.
func NewServer(svc Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, log: logger.Named("grpc")}
}

// Register mounts MatchService and the standard health service on gs.
func Register(gs *grpc.Server, srv *Server) *health.Server {
	gs.RegisterService(&ServiceDesc, srv)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return hs
}

// ─── RPC implementations ─────────────────────────────────────────────────────

// Discover runs a discovery request. The x-user-id metadata, when present,
// identifies the candidate.
func (s *Server) Discover(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req discovery.Request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-user-id"); len(vals) > 0 {
			req.CandidateID = vals[0]
		}
	}

	resp, err := s.svc.Discover(ctx, req)
	if err != nil {
		return nil, s.toGRPCError(err)
	}
	return toStruct(resp)
}

type searchConfigRequest struct {
	ConfigID  string `json:"configId"`
	ForceLive bool   `json:"forceLive"`
}

// DiscoverSearchConfig runs a saved search owned by the caller.
func (s *Server) DiscoverSearchConfig(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req searchConfigRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.ConfigID == "" {
		return nil, status.Error(codes.InvalidArgument, "configId is required")
	}

	resp, err := s.svc.DiscoverSearchConfig(ctx, userID, req.ConfigID, req.ForceLive)
	if err != nil {
		return nil, s.toGRPCError(err)
	}
	return toStruct(resp)
}

// ─── Interceptors ────────────────────────────────────────────────────────────

// LoggingInterceptor logs every unary call with its status code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	log := logger.Named("grpc")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Info("rpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("elapsed", time.Since(start)))
		return resp, err
	}
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

// toGRPCError maps domain errors to gRPC status errors.
func (s *Server) toGRPCError(err error) error {
	var ve *discovery.ValidationError
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Msg)
	case errors.Is(err, discovery.ErrNotFound):
		return status.Error(codes.NotFound, "search config not found")
	case errors.Is(err, discovery.ErrSourceFatal):
		return status.Error(codes.Unavailable, "job store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	s.log.Error("rpc failed", zap.Error(err))
	return status.Error(codes.Internal, "internal server error")
}

func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	b, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

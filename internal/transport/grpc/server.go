package grpc_server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"

	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ModerationServer is the reviewer-facing side of the proof queue.
type ModerationServer struct {
	queue  *usecase.ProofQueue
	logger *zap.Logger
}

func NewModerationServer(queue *usecase.ProofQueue, logger *zap.Logger) *ModerationServer {
	return &ModerationServer{queue: queue, logger: logger}
}

// NewServer wires the moderation service, the health service and the API key
// check into one grpc.Server.
func NewServer(queue *usecase.ProofQueue, apiKey string, logger *zap.Logger) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		recoverInterceptor(logger),
		APIKeyInterceptor(apiKey),
	))
	RegisterModerationServiceServer(s, NewModerationServer(queue, logger))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s, hs
}

func (s *ModerationServer) ListPending(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := int(req.GetFields()["limit"].GetNumberValue())
	list, err := s.queue.ListPending(ctx, limit)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(map[string]any{"validations": list})
}

func (s *ModerationServer) SubmitDecision(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	id, err := uuid.Parse(fields["validation_id"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "validation_id must be a UUID")
	}
	decision, err := domain.ParseDecision(fields["decision"].GetStringValue())
	if err != nil {
		return nil, s.toStatus(err)
	}
	in := usecase.ReviewInput{
		Decision: decision,
		Notes:    fields["notes"].GetStringValue(),
	}
	if ai, ok := fields["ai_result"]; ok && ai.GetStructValue() != nil {
		if in.AIResult, err = protojson.Marshal(ai.GetStructValue()); err != nil {
			return nil, status.Error(codes.InvalidArgument, "ai_result is not valid JSON")
		}
	}
	v, err := s.queue.MarkReviewed(ctx, id, in)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(map[string]any{"validation": v})
}

func (s *ModerationServer) toStatus(err error) error {
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	de := domain.AsError(err)
	var code codes.Code
	switch de.Kind {
	case domain.KindNotFound:
		code = codes.NotFound
	case domain.KindConflict:
		code = codes.FailedPrecondition
		if errors.Is(err, domain.ErrConflict) {
			code = codes.Aborted
		}
	case domain.KindExpired:
		code = codes.FailedPrecondition
	case domain.KindValidation:
		code = codes.InvalidArgument
	case domain.KindStorage:
		code = codes.Unavailable
	default:
		s.logger.Error("moderation call failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, de.Code+": "+de.Message)
}

// toStruct goes through JSON so the wire shape matches the HTTP API.
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

// APIKeyInterceptor checks the x-api-key metadata on every call except health checks.
func APIKeyInterceptor(key string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		var got string
		if vals := md.Get("x-api-key"); len(vals) > 0 {
			got = vals[0]
		}
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		}
		return handler(ctx, req)
	}
}

func recoverInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("panic in grpc handler", zap.String("method", info.FullMethod), zap.Any("panic", p))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

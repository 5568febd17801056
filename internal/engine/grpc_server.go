package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/xela07ax/deception-core/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Сервис описан вручную: запрос и ответ - google.protobuf.Struct с теми же
// полями, что и у HTTP интерфейса.
const (
	TrafficRouterService = "deception.router.v1.TrafficRouter"
	ClassifyMethod       = "/" + TrafficRouterService + "/Classify"
)

// TrafficRouterServer - gRPC транспорт того же пайплайна, что и HTTP.
type TrafficRouterServer interface {
	Classify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type GRPCRouterServer struct {
	router *Router
}

func NewGRPCRouterServer(router *Router) *GRPCRouterServer {
	return &GRPCRouterServer{router: router}
}

// RegisterTrafficRouterServer регистрирует сервис на gRPC сервере.
func RegisterTrafficRouterServer(s grpc.ServiceRegistrar, srv TrafficRouterServer) {
	s.RegisterService(&trafficRouterServiceDesc, srv)
}

func (s *GRPCRouterServer) Classify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	// 1. Struct -> наблюдение через JSON, чтобы теги полей совпадали с HTTP
	raw, err := json.Marshal(req.AsMap())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	var obs domain.TrafficObservation
	if err := json.Unmarshal(raw, &obs); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}

	// 2. Trace-ID из метаданных вызова
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-trace-id"); len(ids) > 0 && ids[0] != "" {
			ctx = WithTraceID(ctx, ids[0])
		}
	}

	decision, err := s.router.Route(ctx, obs)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, "internal error")
	}

	indicators := make([]any, 0, len(decision.RiskIndicators))
	for _, ind := range decision.RiskIndicators {
		indicators = append(indicators, ind)
	}
	var redirect any
	if decision.RedirectURL != nil {
		redirect = *decision.RedirectURL
	}

	return structpb.NewStruct(map[string]any{
		"success":          true,
		"routing_decision": string(decision.Classification),
		"redirect_url":     redirect,
		"confidence_score": decision.Confidence,
		"risk_indicators":  indicators,
		"trace_id":         decision.TraceID,
	})
}

func classifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TrafficRouterServer).Classify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ClassifyMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TrafficRouterServer).Classify(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var trafficRouterServiceDesc = grpc.ServiceDesc{
	ServiceName: TrafficRouterService,
	HandlerType: (*TrafficRouterServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Classify",
			Handler:    classifyHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "deception/router/v1/router.proto",
}

// ClassifyClient - тонкий клиент для вызова Classify без сгенерированного кода.
func ClassifyClient(ctx context.Context, cc grpc.ClientConnInterface, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, ClassifyMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

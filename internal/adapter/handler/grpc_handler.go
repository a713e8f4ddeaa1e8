package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/core/service"
)

const (
	grpcServiceName = "recordstore.OrderService"

	methodCreateOrder = "/" + grpcServiceName + "/CreateOrder"
	methodMostOrdered = "/" + grpcServiceName + "/MostOrdered"
	methodFindRecords = "/" + grpcServiceName + "/FindRecords"
)

// JSONCodec carries the gRPC messages of this service as JSON. Clients select it with
// grpc.CallContentSubtype(JSONCodec{}.Name()).
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(JSONCodec{})
}

type GRPCCreateOrderRequest struct {
	RecordID string `json:"recordId"`
	Quantity int    `json:"quantity"`
}

type GRPCMostOrderedRequest struct{}

type GRPCMostOrderedResponse struct {
	Records []domain.MostOrderedRecord `json:"records"`
}

type GRPCFindRecordsRequest struct {
	Q        string `json:"q,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Format   string `json:"format,omitempty"`
	Category string `json:"category,omitempty"`
	Page     int    `json:"page,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type OrderServiceServer interface {
	CreateOrder(ctx context.Context, req *GRPCCreateOrderRequest) (*domain.Order, error)
	MostOrdered(ctx context.Context, req *GRPCMostOrderedRequest) (*GRPCMostOrderedResponse, error)
	FindRecords(ctx context.Context, req *GRPCFindRecordsRequest) (*domain.Page[domain.Record], error)
}

type GRPCHandler struct {
	orders   OrderUseCase
	records  RecordUseCase
	validate *validator.Validate
}

func NewGRPCHandler(orders OrderUseCase, records RecordUseCase) *GRPCHandler {
	return &GRPCHandler{
		orders:   orders,
		records:  records,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *GRPCCreateOrderRequest) (*domain.Order, error) {
	if req.RecordID == "" {
		return nil, status.Error(codes.InvalidArgument, "recordId is required")
	}
	claims, _ := ClaimsFromContext(ctx)
	order, err := h.orders.CreateOrder(ctx, req.RecordID, req.Quantity, claims.UserID)
	if err != nil {
		return nil, grpcError(err)
	}
	return order, nil
}

func (h *GRPCHandler) MostOrdered(ctx context.Context, _ *GRPCMostOrderedRequest) (*GRPCMostOrderedResponse, error) {
	records, err := h.orders.MostOrderedRecords(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return &GRPCMostOrderedResponse{Records: records}, nil
}

func (h *GRPCHandler) FindRecords(ctx context.Context, req *GRPCFindRecordsRequest) (*domain.Page[domain.Record], error) {
	if req.Page < 0 || req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "page and limit must not be negative")
	}
	enums := listRecordsQuery{
		Format:   domain.RecordFormat(req.Format),
		Category: domain.RecordCategory(req.Category),
	}
	if err := h.validate.Struct(enums); err != nil {
		return nil, grpcError(validationError(err))
	}

	page, err := h.records.FindRecords(ctx, domain.RecordFilter{
		Q:        req.Q,
		Artist:   req.Artist,
		Album:    req.Album,
		Format:   enums.Format,
		Category: enums.Category,
		Page:     req.Page,
		Limit:    req.Limit,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return &page, nil
}

func grpcError(err error) error {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		return status.Error(codes.InvalidArgument, validation.Msg)
	case errors.Is(err, service.ErrInvalidQuantity):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrRecordNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unaryHandler(methodCreateOrder, OrderServiceServer.CreateOrder)},
		{MethodName: "MostOrdered", Handler: unaryHandler(methodMostOrdered, OrderServiceServer.MostOrdered)},
		{MethodName: "FindRecords", Handler: unaryHandler(methodFindRecords, OrderServiceServer.FindRecords)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "recordstore/order_service",
}

func unaryHandler[Req, Resp any](fullMethod string, call func(OrderServiceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		})
	}
}

// OrderServiceClient calls the service over a connection using the JSON codec.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) CreateOrder(ctx context.Context, req *GRPCCreateOrderRequest, opts ...grpc.CallOption) (*domain.Order, error) {
	out := new(domain.Order)
	if err := c.invoke(ctx, methodCreateOrder, req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) MostOrdered(ctx context.Context, opts ...grpc.CallOption) (*GRPCMostOrderedResponse, error) {
	out := new(GRPCMostOrderedResponse)
	if err := c.invoke(ctx, methodMostOrdered, &GRPCMostOrderedRequest{}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) FindRecords(ctx context.Context, req *GRPCFindRecordsRequest, opts ...grpc.CallOption) (*domain.Page[domain.Record], error) {
	out := new(domain.Page[domain.Record])
	if err := c.invoke(ctx, methodFindRecords, req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodec{}.Name())}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

// AuthInterceptor guards the methods listed in roles. Callers pass
// "authorization: Bearer <token>" metadata.
func AuthInterceptor(auth AuthUseCase, roles map[string][]domain.Role) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		allowed, guarded := roles[info.FullMethod]
		if !guarded {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		token, ok := bearerToken(values[0])
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		claims, err := auth.VerifyToken(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, service.ErrInvalidToken.Error())
		}
		for _, role := range allowed {
			if claims.Role == role {
				return handler(WithClaims(ctx, *claims), req)
			}
		}
		return nil, status.Error(codes.PermissionDenied, "forbidden")
	}
}

// OrderMethodRoles is the access policy of the order service.
func OrderMethodRoles() map[string][]domain.Role {
	return map[string][]domain.Role{
		methodCreateOrder: {domain.RoleUser},
	}
}

// ThrottleInterceptor applies the per-client limit to the order methods.
func ThrottleInterceptor(t *Throttler) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.FullMethod == methodCreateOrder || info.FullMethod == methodMostOrdered {
			if !t.Allow(peerHost(ctx)) {
				return nil, status.Error(codes.ResourceExhausted, throttledMessage)
			}
		}
		return handler(ctx, req)
	}
}

func LoggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		event := log.Info()
		if code == codes.Internal || code == codes.Unknown {
			event = log.Error().Err(err)
		} else if err != nil {
			event = log.Warn().Err(err)
		}
		event.Str("method", info.FullMethod).Str("code", code.String()).Dur("duration", time.Since(start)).Msg("grpc request")
		return resp, err
	}
}

func peerHost(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}

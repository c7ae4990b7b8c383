package service

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

const ServiceName = "charter.availability.v1.AvailabilityService"

// AvailabilityServer: обработчики RPC сервиса доступности.
type AvailabilityServer interface {
	CreateCharter(context.Context, *CreateCharterRequest) (*CreateCharterResponse, error)
	GetDayAvailability(context.Context, *DayAvailabilityRequest) (*DayAvailabilityResponse, error)
	AdmitBooking(context.Context, *AdmitBookingRequest) (*AdmitBookingResponse, error)
	CancelBooking(context.Context, *CancelBookingRequest) (*CancelBookingResponse, error)
	QuoteRefund(context.Context, *QuoteRefundRequest) (*QuoteRefundResponse, error)
	RescheduleBooking(context.Context, *RescheduleBookingRequest) (*RescheduleBookingResponse, error)
	ListBookings(context.Context, *ListBookingsRequest) (*ListBookingsResponse, error)
	ConfigureSlot(context.Context, *ConfigureSlotRequest) (*ConfigureSlotResponse, error)
	CreateBlock(context.Context, *CreateBlockRequest) (*CreateBlockResponse, error)
	DeleteBlock(context.Context, *DeleteBlockRequest) (*DeleteBlockResponse, error)
	ListBlocks(context.Context, *ListBlocksRequest) (*ListBlocksResponse, error)
	CreatePriceRule(context.Context, *CreatePriceRuleRequest) (*CreatePriceRuleResponse, error)
	DeletePriceRule(context.Context, *DeletePriceRuleRequest) (*DeletePriceRuleResponse, error)
	ListPriceRules(context.Context, *ListPriceRulesRequest) (*ListPriceRulesResponse, error)
	ListEvents(context.Context, *ListEventsRequest) (*ListEventsResponse, error)
}

var _ AvailabilityServer = (*AvailabilityService)(nil)

// Описание сервиса пишем руками: сообщения: обычные структуры, кодек: JSON.
var AvailabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateCharter", AvailabilityServer.CreateCharter),
		unary("GetDayAvailability", AvailabilityServer.GetDayAvailability),
		unary("AdmitBooking", AvailabilityServer.AdmitBooking),
		unary("CancelBooking", AvailabilityServer.CancelBooking),
		unary("QuoteRefund", AvailabilityServer.QuoteRefund),
		unary("RescheduleBooking", AvailabilityServer.RescheduleBooking),
		unary("ListBookings", AvailabilityServer.ListBookings),
		unary("ConfigureSlot", AvailabilityServer.ConfigureSlot),
		unary("CreateBlock", AvailabilityServer.CreateBlock),
		unary("DeleteBlock", AvailabilityServer.DeleteBlock),
		unary("ListBlocks", AvailabilityServer.ListBlocks),
		unary("CreatePriceRule", AvailabilityServer.CreatePriceRule),
		unary("DeletePriceRule", AvailabilityServer.DeletePriceRule),
		unary("ListPriceRules", AvailabilityServer.ListPriceRules),
		unary("ListEvents", AvailabilityServer.ListEvents),
	},
	Streams: []grpc.StreamDesc{},
}

func unary[Req, Resp any](
	method string,
	call func(AvailabilityServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AvailabilityServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AvailabilityServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func RegisterAvailabilityServer(s grpc.ServiceRegistrar, srv AvailabilityServer) {
	s.RegisterService(&AvailabilityServiceDesc, srv)
}

// NewGRPCServer собирает сервер: сервис доступности, health и reflection.
func NewGRPCServer(srv AvailabilityServer, logger *zap.Logger) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoveryInterceptor(logger),
		LoggingInterceptor(logger),
	))
	RegisterAvailabilityServer(s, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	reflection.Register(s)
	return s, hs
}

func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("latency", time.Since(start)),
		}
		switch code {
		case codes.OK:
			logger.Debug("rpc", fields...)
		case codes.Internal, codes.Unknown, codes.DataLoss:
			logger.Error("rpc failed", append(fields, zap.Error(err))...)
		default:
			logger.Info("rpc rejected", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}

func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("rpc panic",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// AvailabilityClient: клиент сервиса поверх JSON-кодека.
type AvailabilityClient struct {
	cc grpc.ClientConnInterface
}

func NewAvailabilityClient(cc grpc.ClientConnInterface) *AvailabilityClient {
	return &AvailabilityClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AvailabilityClient) CreateCharter(ctx context.Context, in *CreateCharterRequest, opts ...grpc.CallOption) (*CreateCharterResponse, error) {
	return invoke[CreateCharterResponse](ctx, c.cc, "CreateCharter", in, opts)
}

func (c *AvailabilityClient) GetDayAvailability(ctx context.Context, in *DayAvailabilityRequest, opts ...grpc.CallOption) (*DayAvailabilityResponse, error) {
	return invoke[DayAvailabilityResponse](ctx, c.cc, "GetDayAvailability", in, opts)
}

func (c *AvailabilityClient) AdmitBooking(ctx context.Context, in *AdmitBookingRequest, opts ...grpc.CallOption) (*AdmitBookingResponse, error) {
	return invoke[AdmitBookingResponse](ctx, c.cc, "AdmitBooking", in, opts)
}

func (c *AvailabilityClient) CancelBooking(ctx context.Context, in *CancelBookingRequest, opts ...grpc.CallOption) (*CancelBookingResponse, error) {
	return invoke[CancelBookingResponse](ctx, c.cc, "CancelBooking", in, opts)
}

func (c *AvailabilityClient) QuoteRefund(ctx context.Context, in *QuoteRefundRequest, opts ...grpc.CallOption) (*QuoteRefundResponse, error) {
	return invoke[QuoteRefundResponse](ctx, c.cc, "QuoteRefund", in, opts)
}

func (c *AvailabilityClient) RescheduleBooking(ctx context.Context, in *RescheduleBookingRequest, opts ...grpc.CallOption) (*RescheduleBookingResponse, error) {
	return invoke[RescheduleBookingResponse](ctx, c.cc, "RescheduleBooking", in, opts)
}

func (c *AvailabilityClient) ListBookings(ctx context.Context, in *ListBookingsRequest, opts ...grpc.CallOption) (*ListBookingsResponse, error) {
	return invoke[ListBookingsResponse](ctx, c.cc, "ListBookings", in, opts)
}

func (c *AvailabilityClient) ConfigureSlot(ctx context.Context, in *ConfigureSlotRequest, opts ...grpc.CallOption) (*ConfigureSlotResponse, error) {
	return invoke[ConfigureSlotResponse](ctx, c.cc, "ConfigureSlot", in, opts)
}

func (c *AvailabilityClient) CreateBlock(ctx context.Context, in *CreateBlockRequest, opts ...grpc.CallOption) (*CreateBlockResponse, error) {
	return invoke[CreateBlockResponse](ctx, c.cc, "CreateBlock", in, opts)
}

func (c *AvailabilityClient) DeleteBlock(ctx context.Context, in *DeleteBlockRequest, opts ...grpc.CallOption) (*DeleteBlockResponse, error) {
	return invoke[DeleteBlockResponse](ctx, c.cc, "DeleteBlock", in, opts)
}

func (c *AvailabilityClient) ListBlocks(ctx context.Context, in *ListBlocksRequest, opts ...grpc.CallOption) (*ListBlocksResponse, error) {
	return invoke[ListBlocksResponse](ctx, c.cc, "ListBlocks", in, opts)
}

func (c *AvailabilityClient) CreatePriceRule(ctx context.Context, in *CreatePriceRuleRequest, opts ...grpc.CallOption) (*CreatePriceRuleResponse, error) {
	return invoke[CreatePriceRuleResponse](ctx, c.cc, "CreatePriceRule", in, opts)
}

func (c *AvailabilityClient) DeletePriceRule(ctx context.Context, in *DeletePriceRuleRequest, opts ...grpc.CallOption) (*DeletePriceRuleResponse, error) {
	return invoke[DeletePriceRuleResponse](ctx, c.cc, "DeletePriceRule", in, opts)
}

func (c *AvailabilityClient) ListPriceRules(ctx context.Context, in *ListPriceRulesRequest, opts ...grpc.CallOption) (*ListPriceRulesResponse, error) {
	return invoke[ListPriceRulesResponse](ctx, c.cc, "ListPriceRules", in, opts)
}

func (c *AvailabilityClient) ListEvents(ctx context.Context, in *ListEventsRequest, opts ...grpc.CallOption) (*ListEventsResponse, error) {
	return invoke[ListEventsResponse](ctx, c.cc, "ListEvents", in, opts)
}

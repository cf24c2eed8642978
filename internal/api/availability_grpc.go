package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"studiobook/internal/domain"
	"studiobook/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	availabilityServiceName = "studiobook.availability.v1.AvailabilityService"
	methodGetDaySlots       = "/" + availabilityServiceName + "/GetDaySlots"
	methodGetWindow         = "/" + availabilityServiceName + "/GetWindow"
)

// AvailabilityServer is the read-only schedule service exposed to partner
// systems. Messages are google.protobuf.Struct so no generated stubs are needed.
type AvailabilityServer interface {
	GetDaySlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetWindow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: availabilityServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetDaySlots", Handler: getDaySlotsHandler},
		{MethodName: "GetWindow", Handler: getWindowHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "studiobook/availability/v1/availability.proto",
}

// RegisterAvailabilityServer attaches srv to s.
func RegisterAvailabilityServer(s grpc.ServiceRegistrar, srv AvailabilityServer) {
	s.RegisterService(&availabilityServiceDesc, srv)
}

func getDaySlotsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).GetDaySlots(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetDaySlots}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).GetDaySlots(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getWindowHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).GetWindow(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetWindow}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).GetWindow(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// AvailabilityClient calls the availability service over conn.
type AvailabilityClient struct {
	cc grpc.ClientConnInterface
}

func NewAvailabilityClient(cc grpc.ClientConnInterface) *AvailabilityClient {
	return &AvailabilityClient{cc: cc}
}

func (c *AvailabilityClient) GetDaySlots(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetDaySlots, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AvailabilityClient) GetWindow(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetWindow, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// availabilityService answers with the client booking window unless the
// request names another role.
type availabilityService struct {
	availability domain.AvailabilityService
	today        func() time.Time
}

func NewAvailabilityService(availability domain.AvailabilityService, today func() time.Time) AvailabilityServer {
	return &availabilityService{availability: availability, today: today}
}

func (s *availabilityService) GetDaySlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw := stringField(req, "date")
	if raw == "" {
		return nil, status.Error(codes.InvalidArgument, "date is required")
	}
	date, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid date format; expected YYYY-MM-DD")
	}
	role, err := roleField(req)
	if err != nil {
		return nil, err
	}

	slots, err := s.availability.DaySlots(ctx, role, date)
	if err != nil {
		return nil, grpcError(err)
	}

	list := make([]any, 0, len(slots))
	for _, slot := range slots {
		list = append(list, map[string]any{
			"id":               slot.ID,
			"date":             slot.Date,
			"start_time":       slot.StartTime,
			"end_time":         slot.EndTime,
			"capacity_max":     slot.CapacityMax,
			"capacity_current": slot.CapacityCurrent,
			"available":        slot.Available,
			"instructor_name":  slot.InstructorName,
		})
	}
	return structResponse(map[string]any{"date": raw, "slots": list})
}

func (s *availabilityService) GetWindow(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	role, err := roleField(req)
	if err != nil {
		return nil, err
	}
	earliest, latest := s.availability.BookingWindow(role, s.today())
	return structResponse(map[string]any{
		"role":     string(role),
		"earliest": earliest.Format(models.DateLayout),
		"latest":   latest.Format(models.DateLayout),
	})
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	v, ok := req.GetFields()[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

func roleField(req *structpb.Struct) (models.Role, error) {
	raw := stringField(req, "role")
	if raw == "" {
		return models.RoleClient, nil
	}
	role, ok := models.ParseRole(raw)
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "unknown role %q", raw)
	}
	return role, nil
}

func structResponse(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

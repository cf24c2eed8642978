package api

import (
	"context"
	"net"
	"testing"
	"time"

	"studiobook/internal/config"
	"studiobook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func startGRPC(t *testing.T, cfg *config.APIConfig) (*AvailabilityClient, *testServer) {
	t.Helper()
	ts := newTestServer(t)
	logger := zerolog.Nop()

	srv, err := NewGRPCServer(cfg, ts.srv.svc.Availability, ts.clock.Today, &logger)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.ServeListener(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewAvailabilityClient(conn), ts
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestGRPC_GetDaySlots(t *testing.T) {
	client, ts := startGRPC(t, &config.APIConfig{})
	tomorrow := ts.clock.Today().AddDate(0, 0, 1)
	ts.slot(t, tomorrow, 5, 5, 0)
	date := tomorrow.Format(models.DateLayout)

	resp, err := client.GetDaySlots(context.Background(), mustStruct(t, map[string]any{"date": date}))
	require.NoError(t, err)
	assert.Equal(t, date, resp.GetFields()["date"].GetStringValue())
	slots := resp.GetFields()["slots"].GetListValue().GetValues()
	require.Len(t, slots, 1)
	slot := slots[0].GetStructValue().GetFields()
	assert.Equal(t, float64(5), slot["capacity_current"].GetNumberValue())
	assert.False(t, slot["available"].GetBoolValue())

	_, err = client.GetDaySlots(context.Background(), mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	past := ts.clock.Today().AddDate(0, 0, -3).Format(models.DateLayout)
	_, err = client.GetDaySlots(context.Background(), mustStruct(t, map[string]any{"date": past}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	resp, err = client.GetDaySlots(context.Background(), mustStruct(t, map[string]any{"date": past, "role": "instructor"}))
	require.NoError(t, err)
	assert.Empty(t, resp.GetFields()["slots"].GetListValue().GetValues())
}

func TestGRPC_GetWindow(t *testing.T) {
	client, ts := startGRPC(t, &config.APIConfig{})

	resp, err := client.GetWindow(context.Background(), mustStruct(t, map[string]any{"role": "client"}))
	require.NoError(t, err)
	assert.Equal(t, ts.clock.Today().Format(models.DateLayout), resp.GetFields()["earliest"].GetStringValue())

	_, err = client.GetWindow(context.Background(), mustStruct(t, map[string]any{"role": "wizard"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_APIKeyAuth(t *testing.T) {
	cfg := &config.APIConfig{
		Auth: config.APIAuthConfig{
			APIKeys: []config.APIClientKey{
				{Key: "partner", Extra: "shh", Name: "partner", Permissions: []string{permReadAvailability}},
				{Key: "other", Extra: "x", Name: "other", Permissions: []string{"read:nothing"}},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 2},
	}
	client, _ := startGRPC(t, cfg)
	req := mustStruct(t, map[string]any{})

	_, err := client.GetWindow(context.Background(), req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := metadata.AppendToOutgoingContext(context.Background(), apiKeyHeaderDefault, "partner", apiExtraHeaderDefault, "wrong")
	_, err = client.GetWindow(bad, req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	denied := metadata.AppendToOutgoingContext(context.Background(), apiKeyHeaderDefault, "other", apiExtraHeaderDefault, "x")
	_, err = client.GetWindow(denied, req)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	ok := metadata.AppendToOutgoingContext(context.Background(), apiKeyHeaderDefault, "partner", apiExtraHeaderDefault, "shh")
	for i := 0; i < 2; i++ {
		_, err = client.GetWindow(ok, req)
		require.NoError(t, err)
	}
	_, err = client.GetWindow(ok, req)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestChainUnaryInterceptors_Order(t *testing.T) {
	var order []string
	mk := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, h grpc.UnaryHandler) (any, error) {
			order = append(order, name)
			return h(ctx, req)
		}
	}
	chain := ChainUnaryInterceptors(mk("a"), mk("b"))
	_, err := chain(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		order = append(order, "handler")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	_, err := RecoveryUnaryInterceptor(nil)(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: methodGetWindow},
		func(context.Context, any) (any, error) { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
}

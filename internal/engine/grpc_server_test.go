package engine

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/deception-core/internal/repository/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func startBufconnServer(t *testing.T, rt *Router) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterTrafficRouterServer(srv, NewGRPCRouterServer(rt))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGRPCClassify(t *testing.T) {
	store := memory.NewStore()
	seedDecoys(store)
	conn := startBufconnServer(t, newTestRouter(t, store, nil))

	req, err := structpb.NewStruct(map[string]any{
		"source_ip":       "1.2.3.4",
		"destination_url": "http://x/wp-admin",
		"user_agent":      "curl/7.0",
	})
	require.NoError(t, err)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-trace-id", "grpc-trace")
	resp, err := ClassifyClient(ctx, conn, req)
	require.NoError(t, err)

	m := resp.AsMap()
	assert.Equal(t, true, m["success"])
	assert.Equal(t, "malicious", m["routing_decision"])
	assert.InDelta(t, 0.70, m["confidence_score"], 1e-9)
	assert.Equal(t, "http://decoy.local/admin", m["redirect_url"])
	assert.Equal(t, []any{"Automated tool detected", "Sensitive path access"}, m["risk_indicators"])
	assert.Equal(t, "grpc-trace", m["trace_id"])
}

func TestGRPCClassify_InvalidArgument(t *testing.T) {
	conn := startBufconnServer(t, newTestRouter(t, memory.NewStore(), nil))

	req, err := structpb.NewStruct(map[string]any{"destination_url": "http://x/"})
	require.NoError(t, err)

	_, err = ClassifyClient(context.Background(), conn, req)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

package codec

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Raiff1982/TheAi-sub000/internal/tension"
)

// #region helpers
type constEncoder struct{ v float64 }

func (c constEncoder) Encode(_ string, dim int) []float64 {
	out := make([]float64, dim)
	for i := range out {
		out[i] = c.v
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, enc tension.ContextEncoder) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterEncoderServer(srv, enc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	return conn
}

// #endregion helpers

func TestRemoteEncoder_RoundTrip(t *testing.T) {
	local := tension.HashEncoder{Seed: 9}
	enc := NewRemoteEncoderConn(serve(t, local), time.Second, nil, quietLogger())
	defer enc.Close()

	got, err := enc.EncodeContext(context.Background(), "recursion", 8)
	require.NoError(t, err)
	assert.InDeltaSlice(t, local.Encode("recursion", 8), got, 1e-12)
	assert.Equal(t, got, enc.Encode("recursion", 8))
}

func TestRemoteEncoder_ServerRejectsDim(t *testing.T) {
	enc := NewRemoteEncoderConn(serve(t, constEncoder{1}), time.Second, constEncoder{2}, quietLogger())
	defer enc.Close()

	_, err := enc.EncodeContext(context.Background(), "x", 0)
	assert.Error(t, err)
	assert.Empty(t, enc.Encode("x", 0))
}

func TestRemoteEncoder_FallbackOnUnavailable(t *testing.T) {
	lis := bufconn.Listen(1 << 10)
	require.NoError(t, lis.Close())
	conn, err := grpc.NewClient("passthrough:///closed",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	enc := NewRemoteEncoderConn(conn, 200*time.Millisecond, constEncoder{0.5}, quietLogger())
	defer enc.Close()
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, enc.Encode("anything", 3))
}

func TestNewRemoteEncoder_LazyDial(t *testing.T) {
	enc, err := NewRemoteEncoder("localhost:0", 50*time.Millisecond, constEncoder{3}, quietLogger())
	require.NoError(t, err)
	defer enc.Close()
	assert.Equal(t, []float64{3, 3}, enc.Encode("x", 2))
}

func TestDecodeResponse_Errors(t *testing.T) {
	_, err := decodeResponse(nil)
	assert.ErrorIs(t, err, errNoVector)

	req, err := encodeRequest("t", 2)
	require.NoError(t, err)
	_, err = decodeResponse(req)
	assert.ErrorIs(t, err, errNoVector)
}

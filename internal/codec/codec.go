package codec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Raiff1982/TheAi-sub000/internal/tension"
)

// #region wire
// EncodeMethod is the full gRPC method name of the context encoder. Requests
// and responses are google.protobuf.Struct values:
//
//	request:  {"text": string, "dim": number}
//	response: {"vector": [number, ...]}
const EncodeMethod = "/codette.ContextEncoder/Encode"

var errNoVector = errors.New("encode response has no vector")

func encodeRequest(text string, dim int) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"text": text, "dim": float64(dim)})
}

func decodeResponse(resp *structpb.Struct) ([]float64, error) {
	field, ok := resp.GetFields()["vector"]
	if !ok {
		return nil, errNoVector
	}
	list := field.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("vector field: %w", errNoVector)
	}
	out := make([]float64, len(list.GetValues()))
	for i, v := range list.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("vector[%d] is not a number", i)
		}
		out[i] = n.NumberValue
	}
	return out, nil
}

// #endregion wire

// #region client-struct
// RemoteEncoder implements tension.ContextEncoder over gRPC. Any RPC failure
// falls back to a local encoder so the engine never stalls on the network.
type RemoteEncoder struct {
	conn     *grpc.ClientConn
	timeout  time.Duration
	fallback tension.ContextEncoder
	logger   *slog.Logger
}

// #endregion client-struct

// #region constructor
// NewRemoteEncoder connects to the encoder service at addr.
func NewRemoteEncoder(addr string, timeout time.Duration, fallback tension.ContextEncoder, logger *slog.Logger) (*RemoteEncoder, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return NewRemoteEncoderConn(conn, timeout, fallback, logger), nil
}

// NewRemoteEncoderConn wraps an existing connection. Used by tests with an
// in-memory listener.
func NewRemoteEncoderConn(conn *grpc.ClientConn, timeout time.Duration, fallback tension.ContextEncoder, logger *slog.Logger) *RemoteEncoder {
	if fallback == nil {
		fallback = tension.HashEncoder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RemoteEncoder{conn: conn, timeout: timeout, fallback: fallback, logger: logger}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (r *RemoteEncoder) Close() error {
	return r.conn.Close()
}

// #endregion close

// #region encode
// Encode satisfies tension.ContextEncoder.
func (r *RemoteEncoder) Encode(text string, dim int) []float64 {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	vec, err := r.EncodeContext(ctx, text, dim)
	if err != nil {
		r.logger.Warn("remote encoder failed, using fallback", "error", err, "dim", dim)
		return r.fallback.Encode(text, dim)
	}
	return vec
}

// EncodeContext performs the RPC without fallback.
func (r *RemoteEncoder) EncodeContext(ctx context.Context, text string, dim int) ([]float64, error) {
	req, err := encodeRequest(text, dim)
	if err != nil {
		return nil, fmt.Errorf("build encode request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := r.conn.Invoke(ctx, EncodeMethod, req, resp); err != nil {
		return nil, fmt.Errorf("encode rpc: %w", err)
	}
	return decodeResponse(resp)
}

// #endregion encode

package codec

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Raiff1982/TheAi-sub000/internal/tension"
)

// EncoderServer is the server side of EncodeMethod.
type EncoderServer interface {
	Encode(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type localServer struct {
	enc tension.ContextEncoder
}

func (s localServer) Encode(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	text := fields["text"].GetStringValue()
	dim := int(fields["dim"].GetNumberValue())
	if dim <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "dim must be positive, got %d", dim)
	}
	vec := s.enc.Encode(text, dim)
	values := make([]any, len(vec))
	for i, v := range vec {
		values[i] = v
	}
	resp, err := structpb.NewStruct(map[string]any{"vector": values})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func encodeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EncoderServer).Encode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EncodeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EncoderServer).Encode(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "codette.ContextEncoder",
	HandlerType: (*EncoderServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Encode", Handler: encodeHandler},
	},
	Metadata: "codette/encoder",
}

// RegisterEncoderServer serves enc on s under EncodeMethod.
func RegisterEncoderServer(s *grpc.Server, enc tension.ContextEncoder) {
	s.RegisterService(&serviceDesc, localServer{enc: enc})
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/casekeeper/internal/client/models"
	"github.com/dmitrijs2005/casekeeper/internal/common"
)

type operationServer interface {
	Apply(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
}

var operationServiceDesc = grpc.ServiceDesc{
	ServiceName: "casekeeper.v1.OperationService",
	HandlerType: (*operationServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Apply",
		Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			return srv.(operationServer).Apply(ctx, in)
		},
	}},
}

// fakeOperationServer records every request and the token it came with.
type fakeOperationServer struct {
	mu     sync.Mutex
	got    []*structpb.Struct
	tokens []string
	err    error
}

func (f *fakeOperationServer) Apply(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	md, _ := metadata.FromIncomingContext(ctx)
	tok := ""
	if v := md.Get(common.AccessTokenHeaderName); len(v) > 0 {
		tok = v[0]
	}
	f.tokens = append(f.tokens, tok)
	f.got = append(f.got, in)

	if f.err != nil {
		return nil, f.err
	}
	return &emptypb.Empty{}, nil
}

func (f *fakeOperationServer) received() ([]*structpb.Struct, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*structpb.Struct(nil), f.got...), append([]string(nil), f.tokens...)
}

func startServer(t *testing.T) (*GRPCClient, *fakeOperationServer, *health.Server) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()

	ops := &fakeOperationServer{}
	srv.RegisterService(&operationServiceDesc, ops)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := NewGRPCClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, ops, hs
}

func signToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestGRPCClient_Ping(t *testing.T) {
	c, _, hs := startServer(t)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	require.ErrorIs(t, c.Ping(ctx), ErrUnavailable)
}

func TestGRPCClient_SendDeliversOperation(t *testing.T) {
	c, ops, _ := startServer(t)
	ctx := context.Background()

	raw := signToken(t, time.Now().Add(time.Hour))
	require.NoError(t, c.SetToken(raw))

	op := models.Operation{ID: "op-1", Name: "createCase", Payload: json.RawMessage(`{"title":"Lock","priority":2}`)}
	require.NoError(t, c.Send(ctx, op))

	reqs, tokens := ops.received()
	require.Len(t, reqs, 1)
	got := reqs[0].AsMap()
	assert.Equal(t, "op-1", got["id"])
	assert.Equal(t, "createCase", got["name"])
	assert.Equal(t, map[string]any{"title": "Lock", "priority": float64(2)}, got["payload"])
	assert.Equal(t, []string{raw}, tokens)
}

func TestGRPCClient_SendErrors(t *testing.T) {
	tests := []struct {
		name    string
		srvErr  error
		wantErr error
		wantNil bool
	}{
		{"duplicate counts as delivered", status.Error(codes.AlreadyExists, "seen"), nil, true},
		{"unreachable", status.Error(codes.Unavailable, "down"), ErrUnavailable, false},
		{"unauthenticated", status.Error(codes.Unauthenticated, "who"), ErrUnauthorized, false},
		{"rejected", status.Error(codes.InvalidArgument, "bad"), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ops, _ := startServer(t)
			ops.err = tt.srvErr

			err := c.Send(context.Background(), models.Operation{ID: "x", Name: "n"})
			switch {
			case tt.wantNil:
				require.NoError(t, err)
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			default:
				require.ErrorContains(t, err, "rpc error:")
				assert.False(t, errors.Is(err, ErrUnavailable))
			}
		})
	}
}

func TestGRPCClient_ExpiredTokenNotSent(t *testing.T) {
	c, ops, _ := startServer(t)

	require.NoError(t, c.SetToken(signToken(t, time.Now().Add(-time.Minute))))

	err := c.Send(context.Background(), models.Operation{ID: "x", Name: "n"})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorIs(t, err, ErrTokenExpired)
	reqs, _ := ops.received()
	assert.Empty(t, reqs)

	require.NoError(t, c.Ping(context.Background()), "ping does not need a token")
}

func TestGRPCClient_SetToken(t *testing.T) {
	c, ops, _ := startServer(t)

	require.Error(t, c.SetToken("not-a-jwt"))

	require.NoError(t, c.SetToken(signToken(t, time.Now().Add(time.Hour))))
	assert.Equal(t, "alice", c.Token().Subject)

	require.NoError(t, c.SetToken(""))
	assert.Empty(t, c.Token().Raw)

	require.NoError(t, c.Send(context.Background(), models.Operation{ID: "x", Name: "n"}))
	_, tokens := ops.received()
	assert.Equal(t, []string{""}, tokens)
}

func TestInterceptor_AttachesValidToken(t *testing.T) {
	now := time.Now()
	c := &GRPCClient{now: func() time.Time { return now }}
	c.token = StoredToken{Raw: "A1", ExpiresAt: now.Add(time.Minute)}

	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		toks := md.Get(common.AccessTokenHeaderName)
		require.Equal(t, []string{"A1"}, toks)
		return nil
	}
	require.NoError(t, c.accessTokenInterceptor(context.Background(), ApplyMethod, nil, nil, nil, invoker))
}

func TestMapError(t *testing.T) {
	c := &GRPCClient{}

	require.Nil(t, c.mapError(nil))
	require.Equal(t, ErrUnauthorized, c.mapError(status.Error(codes.Unauthenticated, "x")))
	require.Equal(t, ErrUnauthorized, c.mapError(status.Error(codes.PermissionDenied, "x")))
	require.Equal(t, ErrUnavailable, c.mapError(status.Error(codes.Unavailable, "x")))
	require.Equal(t, ErrUnavailable, c.mapError(status.Error(codes.DeadlineExceeded, "x")))
	e := errors.New("plain")
	require.ErrorContains(t, c.mapError(e), "rpc error:")
}

func TestParseToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	tok, err := ParseToken(signToken(t, exp))
	require.NoError(t, err)
	assert.True(t, tok.ExpiresAt.Equal(exp))
	assert.False(t, tok.Expired(exp.Add(-time.Second)))
	assert.True(t, tok.Expired(exp))

	assert.False(t, StoredToken{Raw: "x"}.Expired(time.Now()), "no exp claim never expires")
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/casekeeper/internal/client/models"
	"github.com/dmitrijs2005/casekeeper/internal/common"
)

// ApplyMethod is the full gRPC method name operations are delivered to.
const ApplyMethod = "/casekeeper.v1.OperationService/Apply"

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	health      healthpb.HealthClient
	now         func() time.Time

	mu    sync.RWMutex
	token StoredToken
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if tok := s.Token(); tok.Raw != "" && !tok.Expired(s.now()) {
		ctx = withAccessToken(ctx, tok.Raw)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient connects lazily to endpointURL. Extra dial options are
// appended after the defaults (insecure transport, token interceptor).
func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, now: time.Now}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.health = healthpb.NewHealthClient(conn)
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

// SetToken stores the access token sent with every call. An empty string
// clears it.
func (s *GRPCClient) SetToken(raw string) error {
	var tok StoredToken
	if raw != "" {
		var err error
		if tok, err = ParseToken(raw); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
	return nil
}

func (s *GRPCClient) Token() StoredToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return s.mapError(err)
	}

	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return ErrUnavailable
	}

	return nil
}

// Send delivers op. AlreadyExists from the server means the operation id
// was applied before and counts as delivered.
func (s *GRPCClient) Send(ctx context.Context, op models.Operation) error {
	if tok := s.Token(); tok.Expired(s.now()) {
		return fmt.Errorf("%w: %w", ErrUnauthorized, ErrTokenExpired)
	}

	req, err := operationToStruct(op)
	if err != nil {
		return err
	}

	err = s.conn.Invoke(ctx, ApplyMethod, req, &emptypb.Empty{})
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return s.mapError(err)
}

func operationToStruct(op models.Operation) (*structpb.Struct, error) {
	fields := map[string]any{
		"id":   op.ID,
		"name": op.Name,
	}
	if len(op.Payload) > 0 {
		var payload any
		if err := json.Unmarshal(op.Payload, &payload); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrInvalidOperation, err)
		}
		fields["payload"] = payload
	}

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidOperation, err)
	}
	return st, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

var _ Transport = (*GRPCClient)(nil)

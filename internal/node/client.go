package node

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"forkring/internal/protocol"
	"forkring/internal/transport"
)

// ClientManager manages gRPC connections to mailbox hosts and implements
// transport.Transport over them.
type ClientManager struct {
	mu     sync.RWMutex
	conns  map[string]*grpc.ClientConn // host -> connection
	closed bool
}

// NewClientManager creates a new client manager.
func NewClientManager() *ClientManager {
	return &ClientManager{
		conns: make(map[string]*grpc.ClientConn),
	}
}

// conn returns the connection for host, creating it if needed.
func (cm *ClientManager) conn(host string) (*grpc.ClientConn, error) {
	cm.mu.RLock()
	conn, exists := cm.conns[host]
	closed := cm.closed
	cm.mu.RUnlock()

	if closed {
		return nil, errors.New("client manager closed")
	}
	if exists {
		return conn, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	// Double-check after acquiring write lock
	if conn, exists := cm.conns[host]; exists {
		return conn, nil
	}

	conn, err := grpc.NewClient(host, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", host, err)
	}
	cm.conns[host] = conn
	return conn, nil
}

// Send delivers env to the host named in env.To.
func (cm *ClientManager) Send(ctx context.Context, env protocol.Envelope) error {
	host, _, err := protocol.SplitAddr(env.To)
	if err != nil {
		return err
	}
	req, err := protocol.ToStruct(env)
	if err != nil {
		return err
	}
	conn, err := cm.conn(host)
	if err != nil {
		return err
	}

	err = conn.Invoke(ctx, DeliverMethod, req, new(emptypb.Empty))
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", transport.ErrUnknownAddress, env.To)
	}
	return err
}

// CheckHealth queries the standard health service of host.
func (cm *ClientManager) CheckHealth(ctx context.Context, host string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := cm.conn(host)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Close closes every connection.
func (cm *ClientManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.closed = true
	var errs []error
	for host, conn := range cm.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", host, err))
		}
		delete(cm.conns, host)
	}
	return errors.Join(errs...)
}

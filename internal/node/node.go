package node

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"forkring/internal/logging"
	"forkring/internal/transport"
)

// Node is a gRPC host for agent mailboxes.
type Node struct {
	listenAddr string
	logger     logging.Logger

	mu         sync.Mutex
	lis        net.Listener
	network    *transport.Network
	grpcServer *grpc.Server
	health     *health.Server
}

// New creates a node that will listen on listenAddr. Port 0 picks a free
// port on Listen.
func New(listenAddr string, logger logging.Logger) *Node {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Node{listenAddr: listenAddr, logger: logger}
}

// Listen binds the listening socket and registers the services. Mailboxes
// can be attached once Listen has returned.
func (n *Node) Listen() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.lis != nil {
		return errors.New("node already listening")
	}
	lis, err := net.Listen("tcp", n.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.listenAddr, err)
	}

	n.lis = lis
	n.network = transport.NewNetwork(lis.Addr().String())
	n.logger = n.logger.With("node", lis.Addr().String())

	n.grpcServer = grpc.NewServer()
	RegisterMailboxServer(n.grpcServer, NewServer(n.network, n.logger))

	n.health = health.NewServer()
	n.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	n.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(n.grpcServer, n.health)

	// Enable gRPC reflection for grpcurl
	reflection.Register(n.grpcServer)
	return nil
}

// Addr returns the bound host:port, or "" before Listen.
func (n *Node) Addr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lis == nil {
		return ""
	}
	return n.lis.Addr().String()
}

// Attach registers d under name and returns its mailbox address.
func (n *Node) Attach(name string, d transport.Deliverer) string {
	n.mu.Lock()
	network := n.network
	n.mu.Unlock()

	return network.Attach(name, d)
}

// Serve marks the node healthy and serves until Stop. It returns nil
// after a Stop.
func (n *Node) Serve() error {
	n.mu.Lock()
	lis, srv, hs := n.lis, n.grpcServer, n.health
	n.mu.Unlock()

	if lis == nil {
		return errors.New("node is not listening")
	}

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	n.logger.Info("serving mailboxes")

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop marks the node unhealthy and stops the server.
func (n *Node) Stop() {
	n.mu.Lock()
	srv, hs := n.grpcServer, n.health
	n.mu.Unlock()

	if hs != nil {
		hs.Shutdown()
	}
	if srv != nil {
		n.logger.Info("stopping node")
		srv.GracefulStop()
	}
}

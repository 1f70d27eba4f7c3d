package node

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"forkring/internal/logging"
	"forkring/internal/protocol"
	"forkring/internal/transport"
)

// Server implements the mailbox service on top of a local Network.
type Server struct {
	network *transport.Network
	logger  logging.Logger
}

// NewServer creates a mailbox server routing into network.
func NewServer(network *transport.Network, logger logging.Logger) *Server {
	return &Server{network: network, logger: logger}
}

// Deliver decodes the envelope and queues it in the addressed mailbox.
// The mailbox is written before Deliver returns, so envelopes sent one
// after the other by one client are queued in that order.
func (s *Server) Deliver(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	env, err := protocol.FromStruct(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode envelope: %v", err)
	}

	if err := s.network.Send(ctx, env); err != nil {
		if errors.Is(err, transport.ErrUnknownAddress) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		s.logger.Warn("deliver failed", "from", env.From, "to", env.To, "kind", env.Message.Kind, "error", err)
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &emptypb.Empty{}, nil
}

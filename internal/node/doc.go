// Package node hosts agent mailboxes behind a gRPC server and sends
// envelopes to other hosts over gRPC.
//
// The Mailbox service has a single unary method, Deliver, carrying an
// envelope encoded as a google.protobuf.Struct. A mailbox address is
// "host:port/name": the host part selects the gRPC server and the name
// selects the mailbox attached to it.
package node

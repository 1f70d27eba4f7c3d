// Package transport moves envelopes between mailboxes. It provides the
// Transport interface, an in-process Network router, an unbounded Mailbox
// and an Outbox that keeps per-destination send order.
package transport

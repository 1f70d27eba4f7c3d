// Package coordinator bootstraps a ring of agents through three barriers:
// every agent registers its address, every agent acknowledges its
// neighbor addresses, then every agent is told to start.
//
// Coordinator is the pure state machine; Runner drives it from a mailbox
// and delivers its envelopes with Fanout.
package coordinator

// Package cluster assembles a live ring: N philosopher actors, a
// bootstrap coordinator and a shared ledger, connected either by an
// in-process network or by gRPC nodes on the loopback interface.
package cluster

// Package sim runs a whole ring, coordinator included, on a virtual
// clock. Think and eat durations come from per-agent seeded generators and
// every message is delayed by a seeded latency, so a run is a pure
// function of its Options.
//
// Messages between one ordered pair of addresses are never reordered:
// a message is scheduled no earlier than the previous one on the same pair.
package sim

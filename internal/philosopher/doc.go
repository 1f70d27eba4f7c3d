// Package philosopher implements the per-agent state machine of the
// fork-coloring protocol and the actor that runs it.
//
// Agent is a pure transition function: it consumes one Event at a time and
// returns the messages to send and the timer to arm. It never blocks,
// sleeps or reads the clock, so tests can drive it step by step. Actor
// wraps an Agent with a mailbox, an outbox and a clock for live runs.
//
// An agent cycles THINKING -> HUNGRY -> EATING -> THINKING. A hungry agent
// asks for each missing fork by handing over the request token for it. A
// holder yields a fork only when it is dirty and requested, and eating
// dirties both forks, so no neighbor can keep a fork across two meals
// while another waits.
package philosopher

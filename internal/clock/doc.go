// Package clock provides the time source used for think and eat timers.
// Wall uses real time; Manual keeps virtual time that only moves when the
// caller steps it, so runs are reproducible and tests never sleep.
package clock

// Package protocol defines the closed set of messages exchanged between the
// bootstrap coordinator and the philosophers, and between neighboring
// philosophers, together with their addressing and wire encoding.
package protocol

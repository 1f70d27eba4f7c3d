// Package fork defines the fork token shared by two adjacent philosophers.
// A fork is a plain value: it is held by exactly one agent at a time and
// changes hands only as the payload of a message.
package fork

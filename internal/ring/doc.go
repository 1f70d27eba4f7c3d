// Package ring builds the static ring topology: neighbor indices, fork ids
// and the initial placement of forks and request tokens. The placement is
// chosen so that the initial precedence graph has no cycle.
package ring

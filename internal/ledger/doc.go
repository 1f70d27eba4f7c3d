// Package ledger records fork custody and meals as reported by agents. It
// implements philosopher.Observer and checks the safety properties of a
// run: a fork has at most one holder, every acquisition is matched by a
// release, and only dirty forks are handed over.
package ledger

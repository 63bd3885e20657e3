// Package engine implements the access decision function. Every inbound
// request is reduced to a single ordered evaluation over the caller's
// identity, roles, and resolved permission set; the first matching rule
// terminates the evaluation and the engine always returns a decision,
// never an error. Internal failures of any kind resolve to a denial.
package engine

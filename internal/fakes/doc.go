// Package fakes provides hand-written test doubles for the external clients
// dfops talks to: Secret Manager, git and the process executor.
//
// Fakes satisfy the small client interfaces declared by each package
// structurally, so this package imports none of them.
package fakes

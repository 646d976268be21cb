/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package verifier

import "github.com/jacobin-vm/classverify/checker"

// Config selects the orchestrator's pluggable policy. The zero Config is
// not directly usable; call DefaultConfig.
type Config struct {
	// TypeChecker decides merge/assignability policy (spec.md §4.5). A
	// freestanding verification run wants Strict; re-verifying output
	// this module itself produced can use checker.None to skip
	// redundant checks.
	TypeChecker checker.TypeChecker

	// MaxInstructions, when nonzero, rejects a method body outright
	// before tracing it. The library itself has no cancellation or
	// timeout model (spec.md §5: "callers impose them by bounding
	// method size before invoking"); this field is that bound, applied
	// by the orchestrator on the caller's behalf instead of requiring
	// every caller to count instructions itself.
	MaxInstructions int
}

// DefaultConfig returns the Strict-checked configuration suitable for
// verifying arbitrary, untrusted class files, with no instruction-count
// bound applied.
func DefaultConfig() Config {
	return Config{TypeChecker: checker.Strict{}}
}

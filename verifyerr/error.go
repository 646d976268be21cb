/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package verifyerr defines the verifier's error taxonomy (spec.md §7):
// the recoverable/fatal Kind split, the per-error Source, and the
// VerifyError aggregate raised when verification of a method fails.
package verifyerr

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind tags the origin and recoverability of an Error (spec.md §7).
type Kind int

const (
	// MalformedPool — constant-pool lookup failure. Fatal to the class.
	MalformedPool Kind = iota
	// MalformedDescriptor — descriptor parser failure. Fatal unless the
	// parser was asked to recover (DontThrow).
	MalformedDescriptor
	// UnknownOpcode — instruction decoder hit an unrecognized opcode.
	// Fatal to the method.
	UnknownOpcode
	// MalformedCode — a CFG invariant was violated. Fatal to the method.
	MalformedCode
	// InvalidType — an instruction's trace contract saw an unassignable
	// operand type. Recoverable.
	InvalidType
	// InvalidStack — a stack height or category violation. Recoverable.
	InvalidStack
	// InvalidLocal — a local-variable index out of range or wrong
	// category. Recoverable.
	InvalidLocal
	// InvalidInstruction — an instruction was internally inconsistent
	// (e.g. multianewarray dimension count exceeds the array type's
	// dimension). Recoverable.
	InvalidInstruction
	// MalformedStackMap — StackMapTable codec failure. Fatal to the
	// method.
	MalformedStackMap
)

func (k Kind) String() string {
	switch k {
	case MalformedPool:
		return "MalformedPool"
	case MalformedDescriptor:
		return "MalformedDescriptor"
	case UnknownOpcode:
		return "UnknownOpcode"
	case MalformedCode:
		return "MalformedCode"
	case InvalidType:
		return "InvalidType"
	case InvalidStack:
		return "InvalidStack"
	case InvalidLocal:
		return "InvalidLocal"
	case InvalidInstruction:
		return "InvalidInstruction"
	case MalformedStackMap:
		return "MalformedStackMap"
	default:
		return "Unknown"
	}
}

// Fatal reports whether errors of this kind end the enclosing operation
// immediately, rather than accumulating (spec.md §7).
func (k Kind) Fatal() bool {
	switch k {
	case MalformedPool, MalformedDescriptor, UnknownOpcode, MalformedCode, MalformedStackMap:
		return true
	default:
		return false
	}
}

// Source identifies what produced an Error: typically an instruction or
// a block label. nil is valid and renders as the source-less message
// form (spec.md §7).
type Source interface {
	fmt.Stringer
}

// BlockLabel is a Source naming a CFG block rather than an instruction,
// used for structural errors raised by graph assembly.
type BlockLabel int

func (b BlockLabel) String() string { return fmt.Sprintf("block %d", int(b)) }

// Error is one finding from the bytecode analysis (spec.md §7).
type Error struct {
	Kind    Kind
	Source  Source // may be nil
	Message string
}

// New constructs an Error. Message is built the way kirjava's
// Error.__init__ joins its varargs: space-separated.
func New(kind Kind, source Source, parts ...interface{}) Error {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = fmt.Sprint(p)
	}
	return Error{Kind: kind, Source: source, Message: strings.Join(strs, " ")}
}

func (e Error) String() string {
	if e.Source == nil {
		return fmt.Sprintf("error: %s", e.Message)
	}
	return fmt.Sprintf("error at %s: %s", e.Source.String(), e.Message)
}

// Error lets a single Error value be used directly as a Go error (e.g.
// frame.Pop's stack-underflow case), in addition to being accumulated
// into a []Error sink.
func (e Error) Error() string { return e.String() }

// VerifyError is returned when verification of a method fails: either a
// fatal Error ended it early, or recoverable Errors accumulated and the
// caller asked for them to be surfaced as a failure.
type VerifyError struct {
	Errors []Error
}

// NewVerifyError wraps one or more accumulated errors as a VerifyError.
func NewVerifyError(errs []Error) *VerifyError {
	cp := make([]Error, len(errs))
	copy(cp, errs)
	return &VerifyError{Errors: cp}
}

func (v *VerifyError) Error() string {
	lines := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		lines[i] = " - " + e.String()
	}
	return fmt.Sprintf("%d verification error(s):\n%s", len(v.Errors), strings.Join(lines, "\n"))
}

// Fatal wraps a single fatal-kind Error with a stack trace (via
// github.com/pkg/errors) and returns it as a *VerifyError containing the
// errors accumulated so far plus this one, matching spec.md §7's "fatal
// errors end the operation immediately with VerifyError(errors_so_far +
// fatal)".
func Fatal(errsSoFar []Error, kind Kind, source Source, parts ...interface{}) error {
	e := New(kind, source, parts...)
	ve := NewVerifyError(append(append([]Error{}, errsSoFar...), e))
	return errors.WithStack(ve)
}

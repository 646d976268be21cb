/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package cfg

import (
	"github.com/jacobin-vm/classverify/instr"
	"github.com/jacobin-vm/classverify/types"
)

// EdgeKind is the tag of an Edge's variant (spec.md §3 "Edge").
type EdgeKind int

const (
	Fallthrough EdgeKind = iota
	Jump
	JsrJump
	JsrFallthrough
	Ret
	Switch
	Exception
)

func (k EdgeKind) String() string {
	switch k {
	case Fallthrough:
		return "Fallthrough"
	case Jump:
		return "Jump"
	case JsrJump:
		return "JsrJump"
	case JsrFallthrough:
		return "JsrFallthrough"
	case Ret:
		return "Ret"
	case Switch:
		return "Switch"
	case Exception:
		return "Exception"
	default:
		return "?"
	}
}

// Edge is one outgoing transition from a Block (spec.md §3). Not every
// field is meaningful for every Kind; see the per-field comments.
type Edge struct {
	From, To int
	Kind     EdgeKind

	// Instr is the instruction that produced this edge: the jump/jsr/ret
	// instruction for Jump/JsrJump/JsrFallthrough/Ret/Switch, nil for
	// Fallthrough and Exception.
	Instr *instr.Instruction

	// SwitchValue is the case value for a Switch edge: nil denotes the
	// default branch, otherwise the matched int32 (spec.md §3: "value=None
	// denotes the default branch").
	SwitchValue *int32

	// RetResolved reports whether To has been filled in by the trace
	// engine yet (spec.md §3: "target may be unknown until trace
	// resolves it", §4.5: "pop the matching return-address from the
	// locals; set the edge's target"). Only meaningful for Kind == Ret.
	RetResolved bool

	// Priority is this Exception edge's position in the original
	// exception table, lower tried first (spec.md §3, "Handler priority"
	// in the glossary). Exception edges leaving the same block are kept
	// in Block.Out sorted by Priority (graph invariant, spec.md §3).
	Priority int
	// Throwable is the handler's declared catch type, defaulting to
	// java/lang/Throwable for a catch-all entry (catch_type == 0).
	Throwable types.Type
	// InlineCoverage is true when the protected region this edge guards
	// was extended by subroutine inlining. This module performs no
	// inlining transformation, so Build never sets it; the field exists
	// so a future transformation pass re-emitting the exception table can
	// record it without changing Edge's shape (spec.md §4.4: "used when
	// re-emitting the exception table after transformations").
	InlineCoverage bool
}

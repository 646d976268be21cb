/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package frame

import (
	"github.com/jacobin-vm/classverify/checker"
	"github.com/jacobin-vm/classverify/types"
	"github.com/jacobin-vm/classverify/verifyerr"
)

// Merge computes the point-wise least upper bound of a and b (spec.md
// §4.5, "Merging frames"): locals are padded with top to the longer
// length, stacks must have equal heights, and each slot merges via
// identical-types-pass-through / reference-types-via-checker /
// else-top. A stack-height mismatch is reported as InvalidStack and the
// merge proceeds over the shorter of the two heights so that tracing can
// continue (spec.md §7: recoverable errors accumulate, they don't abort).
func Merge(a, b *Frame, tc checker.TypeChecker, source verifyerr.Source, errs *[]verifyerr.Error) *Frame {
	result := &Frame{}

	n := len(a.Locals)
	if len(b.Locals) > n {
		n = len(b.Locals)
	}
	result.Locals = make([]Value, n)
	for i := 0; i < n; i++ {
		result.Locals[i] = mergeValue(localAt(a, i), localAt(b, i), tc, source, errs)
	}

	if len(a.Stack) != len(b.Stack) {
		*errs = append(*errs, verifyerr.New(verifyerr.InvalidStack, source,
			"cannot merge frames with different stack heights:", len(a.Stack), "vs", len(b.Stack)))
	}
	n = len(a.Stack)
	if len(b.Stack) < n {
		n = len(b.Stack)
	}
	result.Stack = make([]Value, n)
	for i := 0; i < n; i++ {
		result.Stack[i] = mergeValue(a.Stack[i], b.Stack[i], tc, source, errs)
	}

	return result
}

func localAt(f *Frame, i int) Value {
	if i < len(f.Locals) {
		return f.Locals[i]
	}
	return Value{Type: types.Top}
}

func mergeValue(x, y Value, tc checker.TypeChecker, source verifyerr.Source, errs *[]verifyerr.Error) Value {
	parents := append(append([]Origin{}, x.Parents...), y.Parents...)
	if x.Type.Equal(y.Type) {
		return Value{Type: x.Type, Parents: parents}
	}
	if x.Type.IsReference() && y.Type.IsReference() {
		return Value{Type: tc.CheckMerge(x.Type, y.Type, source, errs), Parents: parents}
	}
	return Value{Type: types.Top}
}

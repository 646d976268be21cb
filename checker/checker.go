/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package checker defines the pluggable type-assignability policy the
// trace engine consults at every push, pop, and merge point. The module
// has no access to a loaded class hierarchy, so "is x assignable to y"
// can't be answered by a real subtype search; the three variants here
// trade strictness for usability the way kirjava's abc/verifier.py
// TypeChecker/NoTypeChecker pair does.
package checker

import (
	"fmt"

	"github.com/jacobin-vm/classverify/types"
	"github.com/jacobin-vm/classverify/verifyerr"
)

// TypeChecker is consulted by the trace engine (spec.md §4.5) to decide
// whether operand types may be merged or substituted for one another.
type TypeChecker interface {
	// CheckMerge reports whether merging a and b at a CFG join point is
	// legal, and if so returns the merged type. A type mismatch is
	// reported via errs rather than returned as an error, matching
	// spec.md §7's "recoverable errors accumulate" contract — the merge
	// still produces a usable (if imprecise) type so tracing can
	// continue.
	CheckMerge(a, b types.Type, source verifyerr.Source, errs *[]verifyerr.Error) types.Type
	// CheckReference requires t to be a reference type (class, array,
	// null, or an uninitialized marker).
	CheckReference(t types.Type, source verifyerr.Source, errs *[]verifyerr.Error)
	// CheckArray requires t to be an array type (or null, which is
	// assignable to any array type).
	CheckArray(t types.Type, source verifyerr.Source, errs *[]verifyerr.Error)
	// CheckCategory requires t's slot category (1 or 2) to equal want.
	CheckCategory(t types.Type, want int, source verifyerr.Source, errs *[]verifyerr.Error)
	// CheckAssignable requires a value of type actual to be usable where
	// expected is required (e.g. an instruction's declared operand
	// type).
	CheckAssignable(expected, actual types.Type, source verifyerr.Source, errs *[]verifyerr.Error)
}

func emit(errs *[]verifyerr.Error, source verifyerr.Source, format string, args ...interface{}) {
	*errs = append(*errs, verifyerr.New(verifyerr.InvalidType, source, fmt.Sprintf(format, args...)))
}

// baseChecks holds the structural (reference/array/category) checks,
// which are identical across Strict and Permissive — only merge and
// cross-class assignability policy differ between them.
type baseChecks struct{}

func (baseChecks) CheckReference(t types.Type, source verifyerr.Source, errs *[]verifyerr.Error) {
	if !t.IsReference() {
		emit(errs, source, "expected a reference type, got %s", t)
	}
}

func (baseChecks) CheckArray(t types.Type, source verifyerr.Source, errs *[]verifyerr.Error) {
	if t.Kind() == types.KindNull {
		return
	}
	if !t.IsArray() {
		emit(errs, source, "expected an array type, got %s", t)
	}
}

func (baseChecks) CheckCategory(t types.Type, want int, source verifyerr.Source, errs *[]verifyerr.Error) {
	if t.Category() != want {
		emit(errs, source, "expected a category-%d value, got %s (category %d)", want, t, t.Category())
	}
}

// mergeReferences implements the shared reference-merge shape used by
// both Strict and Permissive: identical types merge to themselves, null
// merges to the other side's type, an uninitialized marker only merges
// with an identical marker, and two distinct class/array types merge to
// types.Object (the universal reference supertype) since no class
// hierarchy is available to compute a tighter common supertype — this
// mirrors how a split-verifier without full hierarchy access widens
// disagreeing reference merges.
func mergeReferences(a, b types.Type) types.Type {
	if a.Equal(b) {
		return a
	}
	if a.Kind() == types.KindNull {
		return b
	}
	if b.Kind() == types.KindNull {
		return a
	}
	if a.Kind() == types.KindUninitializedThis || b.Kind() == types.KindUninitializedThis ||
		a.Kind() == types.KindUninitialized || b.Kind() == types.KindUninitialized {
		return types.Top
	}
	if a.IsReference() && b.IsReference() {
		return types.Object
	}
	return types.Top
}

// Strict rejects any merge or assignment between distinct primitive
// kinds, and any cross-class assignment that is not handled by
// mergeReferences's identical/null cases — it never silently widens two
// unrelated classes into Object without flagging it as a reportable
// merge. This is the default checker a freestanding verification run
// should use.
type Strict struct{ baseChecks }

func (Strict) CheckMerge(a, b types.Type, source verifyerr.Source, errs *[]verifyerr.Error) types.Type {
	if a.Equal(b) {
		return a
	}
	if a.IsPrimitive() || b.IsPrimitive() {
		if a.IsPrimitive() != b.IsPrimitive() || a.Kind() != b.Kind() {
			emit(errs, source, "cannot merge incompatible types %s and %s", a, b)
			return types.Top
		}
		return a
	}
	merged := mergeReferences(a, b)
	if merged.Equal(types.Object) && !a.Equal(types.Object) && !b.Equal(types.Object) {
		emit(errs, source, "merging unrelated reference types %s and %s widens to %s", a, b, merged)
	}
	return merged
}

func (Strict) CheckAssignable(expected, actual types.Type, source verifyerr.Source, errs *[]verifyerr.Error) {
	if expected.Equal(actual) {
		return
	}
	if expected.IsReference() && actual.Kind() == types.KindNull {
		return
	}
	if expected.IsReference() && actual.IsReference() {
		// Without a loaded hierarchy we cannot refute assignability
		// between two distinct reference types; only flag the cases we
		// know are wrong (object where the uninitialized marker escaped,
		// or vice versa).
		if actual.Kind() == types.KindUninitializedThis || actual.Kind() == types.KindUninitialized {
			emit(errs, source, "uninitialized value %s is not assignable to %s", actual, expected)
		}
		return
	}
	if expected.IsPrimitive() && actual.IsPrimitive() && expected.Kind() == actual.Kind() {
		return
	}
	emit(errs, source, "value of type %s is not assignable to %s", actual, expected)
}

// Permissive widens every unresolved reference-type disagreement to
// Object without reporting it, for consuming already-compiled,
// previously-verified code where hierarchy-aware merges would otherwise
// spuriously fail without a loaded classpath.
type Permissive struct{ baseChecks }

func (Permissive) CheckMerge(a, b types.Type, source verifyerr.Source, errs *[]verifyerr.Error) types.Type {
	if a.Equal(b) {
		return a
	}
	if a.IsPrimitive() && b.IsPrimitive() {
		if a.Kind() != b.Kind() {
			emit(errs, source, "cannot merge incompatible primitive types %s and %s", a, b)
			return types.Top
		}
		return a
	}
	if a.IsPrimitive() != b.IsPrimitive() {
		emit(errs, source, "cannot merge incompatible types %s and %s", a, b)
		return types.Top
	}
	return mergeReferences(a, b)
}

func (Permissive) CheckAssignable(expected, actual types.Type, source verifyerr.Source, errs *[]verifyerr.Error) {
	if expected.IsReference() && actual.IsReference() {
		return
	}
	if expected.IsPrimitive() && actual.IsPrimitive() && expected.Kind() == actual.Kind() {
		return
	}
	if expected.Equal(actual) {
		return
	}
	emit(errs, source, "value of type %s is not assignable to %s", actual, expected)
}

// None performs no checking at all and always merges optimistically.
// Intended for re-verifying code this module itself just produced,
// where the trace is known-consistent and paying for checks again would
// be pure overhead — matching kirjava's NoTypeChecker.
type None struct{}

func (None) CheckMerge(a, b types.Type, _ verifyerr.Source, _ *[]verifyerr.Error) types.Type {
	if a.Equal(b) {
		return a
	}
	if a.IsReference() && b.IsReference() {
		return mergeReferences(a, b)
	}
	return a
}

func (None) CheckReference(types.Type, verifyerr.Source, *[]verifyerr.Error)          {}
func (None) CheckArray(types.Type, verifyerr.Source, *[]verifyerr.Error)              {}
func (None) CheckCategory(types.Type, int, verifyerr.Source, *[]verifyerr.Error)      {}
func (None) CheckAssignable(types.Type, types.Type, verifyerr.Source, *[]verifyerr.Error) {}

/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package frame implements the abstract interpreter's per-program-point
// state: local variables and operand stack, each slot carrying a
// verification type plus the instructions that produced it (spec.md §3,
// "Frame"). Grounded on kirjava analysis/trace.py's State/Entry pair, as
// referenced by instructions/new.py's trace methods (`state.pop`,
// `state.push(source, type, parents=...)`).
package frame

import (
	"fmt"

	"github.com/jacobin-vm/classverify/types"
	"github.com/jacobin-vm/classverify/verifyerr"
)

// Origin identifies the instruction that produced a value, for
// diagnostics and for the uninitialized-object substitution pass (spec.md
// DESIGN NOTES: "frame-wide substitution pass on the invoking
// instruction's post-frame"). Block/Index are filled in by the interp
// package with the CFG block label and in-block instruction index.
type Origin struct {
	Block int
	Index int
}

func (o Origin) String() string { return fmt.Sprintf("block %d, instruction %d", o.Block, o.Index) }

// Value is one live operand-stack or local-variable slot.
type Value struct {
	Type    types.Type
	Parents []Origin
}

// Frame is the abstract (locals, stack) state at a program point
// (spec.md §3). Locals are slot-indexed exactly like bytecode local
// variable numbers: a category-2 value at index i reserves index i+1,
// whose slot holds types.Top and may not be read directly — this
// mirrors how `lload`/`dstore` address locals physically. The operand
// stack, by contrast, is addressed only by push/pop, never by index, so
// it is stored as one logical entry per value regardless of category;
// StackWidth accounts for the doubled physical width when a caller needs
// it (e.g. checking against a method's declared max_stack).
type Frame struct {
	Locals []Value
	Stack  []Value
}

// New returns a frame with numLocals local slots, all types.Top, and an
// empty stack.
func New(numLocals int) *Frame {
	locals := make([]Value, numLocals)
	for i := range locals {
		locals[i] = Value{Type: types.Top}
	}
	return &Frame{Locals: locals}
}

// Clone returns a deep copy safe to mutate independently of f.
func (f *Frame) Clone() *Frame {
	cp := &Frame{
		Locals: make([]Value, len(f.Locals)),
		Stack:  make([]Value, len(f.Stack)),
	}
	copy(cp.Locals, f.Locals)
	copy(cp.Stack, f.Stack)
	return cp
}

func localError(index int, format string, args ...interface{}) error {
	return verifyerr.New(verifyerr.InvalidLocal, nil, fmt.Sprintf(format, args...))
}

// GetLocal returns the type stored at index. It fails InvalidLocal if
// index is out of range, or if index names the reserved upper half of a
// category-2 value stored at index-1.
func (f *Frame) GetLocal(index int) (types.Type, error) {
	if index < 0 || index >= len(f.Locals) {
		return types.Top, localError(index, "local variable index %d out of range (max_locals=%d)", index, len(f.Locals))
	}
	if index > 0 && f.Locals[index].Type.Kind() == types.KindTop && f.Locals[index-1].Type.Category() == 2 {
		return types.Top, localError(index, "local variable index %d is the reserved upper half of a wide value at %d", index, index-1)
	}
	return f.Locals[index].Type, nil
}

// SetLocal stores t at index, along with its parents. A category-2 type
// also reserves index+1.
func (f *Frame) SetLocal(index int, t types.Type, parents ...Origin) error {
	if index < 0 || index >= len(f.Locals) {
		return localError(index, "local variable index %d out of range (max_locals=%d)", index, len(f.Locals))
	}
	if t.Category() == 2 {
		if index+1 >= len(f.Locals) {
			return localError(index, "wide value at local %d overruns max_locals=%d", index, len(f.Locals))
		}
		f.Locals[index] = Value{Type: t, Parents: parents}
		f.Locals[index+1] = Value{Type: types.Top}
		return nil
	}
	f.Locals[index] = Value{Type: t, Parents: parents}
	return nil
}

// Push appends a value to the top of the operand stack.
func (f *Frame) Push(t types.Type, parents ...Origin) {
	f.Stack = append(f.Stack, Value{Type: t, Parents: parents})
}

// Pop removes and returns the top of the operand stack. It fails
// InvalidStack if the stack is empty.
func (f *Frame) Pop() (Value, error) {
	if len(f.Stack) == 0 {
		return Value{}, verifyerr.New(verifyerr.InvalidStack, nil, "operand stack underflow")
	}
	v := f.Stack[len(f.Stack)-1]
	f.Stack = f.Stack[:len(f.Stack)-1]
	return v, nil
}

// Peek returns the top of the operand stack without removing it.
func (f *Frame) Peek() (Value, error) {
	if len(f.Stack) == 0 {
		return Value{}, verifyerr.New(verifyerr.InvalidStack, nil, "operand stack underflow")
	}
	return f.Stack[len(f.Stack)-1], nil
}

// StackWidth returns the physical stack depth in words, counting
// category-2 values twice.
func (f *Frame) StackWidth() int {
	w := 0
	for _, v := range f.Stack {
		w += v.Type.Category()
	}
	return w
}

// Equal reports whether f and o hold the same sequence of types in
// locals and stack, ignoring provenance — the comparison spec.md §8 P4
// (merge commutativity/idempotence) is stated over.
func (f *Frame) Equal(o *Frame) bool {
	if len(f.Locals) != len(o.Locals) || len(f.Stack) != len(o.Stack) {
		return false
	}
	for i := range f.Locals {
		if !f.Locals[i].Type.Equal(o.Locals[i].Type) {
			return false
		}
	}
	for i := range f.Stack {
		if !f.Stack[i].Type.Equal(o.Stack[i].Type) {
			return false
		}
	}
	return true
}

// SubstituteUninitialized replaces every live occurrence of old (an
// uninitializedThis or uninitialized(offset) marker) with replacement,
// across both locals and stack. The trace engine calls this on the
// post-frame of an `invokespecial <init>` (spec.md DESIGN NOTES: "every
// live occurrence is rewritten to the initialized class type").
func (f *Frame) SubstituteUninitialized(old, replacement types.Type) {
	for i, v := range f.Locals {
		if v.Type.Equal(old) {
			f.Locals[i].Type = replacement
		}
	}
	for i, v := range f.Stack {
		if v.Type.Equal(old) {
			f.Stack[i].Type = replacement
		}
	}
}

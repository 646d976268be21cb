/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package types implements the verification-type lattice used throughout
// the verifier: primitive markers, reference types, and the
// uninitialized-object markers produced by `new`.
//
// Primitive and verification-marker values are interned once at package
// init and are safe to compare with ==; only Class, Array and
// Uninitialized values are allocated per occurrence.
package types

import "fmt"

// Kind tags a VerificationType's shape.
type Kind uint8

const (
	KindTop Kind = iota
	KindInt
	KindFloat
	KindLong
	KindDouble
	KindBool
	KindByte
	KindShort
	KindChar
	KindNull
	KindUninitializedThis
	KindUninitialized
	KindClass
	KindArray
	// KindVoid never occurs as an operand-stack or local-variable type; it
	// only ever labels a method's return type, distinct from KindTop (the
	// "no useful type" merge bottom).
	KindVoid
	// KindReturnAddress is the type jsr pushes and a local holding a ret
	// target carries; distinct from every reference and primitive kind
	// per JVM spec §4.10.1.7 (it is never assignable to/from either).
	KindReturnAddress
)

// Type is a single value in the verification-type lattice (spec.md §3).
type Type struct {
	kind Kind

	// Class name for KindClass; an array's element type lives in elem.
	name string

	// Element type and dimension for KindArray (dimension >= 1).
	elem *Type
	dim  int

	// Bytecode offset of the `new` that produced this value, for
	// KindUninitialized.
	offset int
}

func prim(k Kind) Type { return Type{kind: k} }

// Interned primitive and verification-marker values. Constructed once;
// thereafter read-only, per DESIGN NOTES item 3.
var (
	Top                = prim(KindTop)
	Int                = prim(KindInt)
	Float              = prim(KindFloat)
	Long               = prim(KindLong)
	Double             = prim(KindDouble)
	Bool               = prim(KindBool)
	Byte               = prim(KindByte)
	Short              = prim(KindShort)
	Char               = prim(KindChar)
	Null               = prim(KindNull)
	UninitializedThis  = prim(KindUninitializedThis)
	Void               = prim(KindVoid)
)

// Object is the verification type for java/lang/Object, used as the
// universal reference supertype by the merge algorithm.
var Object = Class("java/lang/Object")

// Throwable is the default exception-handler type (spec.md §3, Edge
// variant `Exception`).
var Throwable = Class("java/lang/Throwable")

// Class constructs a class-or-interface reference type.
func Class(name string) Type {
	return Type{kind: KindClass, name: name}
}

// Array constructs an array type with the given element type and
// dimension (dimension must be >= 1).
func Array(elem Type, dim int) Type {
	if dim < 1 {
		panic("types: array dimension must be >= 1")
	}
	e := elem
	return Type{kind: KindArray, elem: &e, dim: dim}
}

// Uninitialized constructs the verification type for the result of a
// `new` at the given bytecode offset, before its <init> has run.
func Uninitialized(offset int) Type {
	return Type{kind: KindUninitialized, offset: offset}
}

// ReturnAddress constructs the type jsr pushes, tagged with an offset
// naming its call site (instr.Trace uses the jsr's own offset; interp
// retags it with the label of the block the subroutine returns to), so
// two return addresses from different call sites are never
// merge-compatible.
func ReturnAddress(offset int) Type {
	return Type{kind: KindReturnAddress, offset: offset}
}

func (t Type) Kind() Kind { return t.kind }

func (t Type) IsPrimitive() bool {
	switch t.kind {
	case KindInt, KindFloat, KindLong, KindDouble, KindBool, KindByte, KindShort, KindChar:
		return true
	}
	return false
}

func (t Type) IsReference() bool {
	switch t.kind {
	case KindClass, KindArray, KindNull, KindUninitializedThis, KindUninitialized:
		return true
	}
	return false
}

func (t Type) IsArray() bool { return t.kind == KindArray }
func (t Type) IsClass() bool { return t.kind == KindClass }

// ClassName returns the class name for a KindClass type, or "" otherwise.
func (t Type) ClassName() string {
	if t.kind == KindClass {
		return t.name
	}
	return ""
}

// Element returns the element type of an array type. Panics if t is not
// an array.
func (t Type) Element() Type {
	if t.kind != KindArray {
		panic("types: Element() on non-array type")
	}
	if t.dim == 1 {
		return *t.elem
	}
	return Array(*t.elem, t.dim-1)
}

// Dimension returns the array dimension, or 0 if t is not an array.
func (t Type) Dimension() int {
	if t.kind != KindArray {
		return 0
	}
	return t.dim
}

// Offset returns the creating `new` instruction's bytecode offset for an
// Uninitialized type. Panics otherwise.
func (t Type) Offset() int {
	if t.kind != KindUninitialized {
		panic("types: Offset() on non-uninitialized type")
	}
	return t.offset
}

// Category returns the slot category of t: 2 for long/double, 1 for
// everything else (spec.md §3).
func (t Type) Category() int {
	if t.kind == KindLong || t.kind == KindDouble {
		return 2
	}
	return 1
}

// Equal reports whether two verification types are identical.
func (t Type) Equal(o Type) bool {
	if t.kind != o.kind {
		return false
	}
	switch t.kind {
	case KindClass:
		return t.name == o.name
	case KindArray:
		return t.dim == o.dim && t.elem.Equal(*o.elem)
	case KindUninitialized:
		return t.offset == o.offset
	case KindReturnAddress:
		return t.offset == o.offset
	default:
		return true
	}
}

func (t Type) String() string {
	switch t.kind {
	case KindTop:
		return "top"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindBool:
		return "boolean"
	case KindByte:
		return "byte"
	case KindShort:
		return "short"
	case KindChar:
		return "char"
	case KindNull:
		return "null"
	case KindUninitializedThis:
		return "uninitializedThis"
	case KindVoid:
		return "void"
	case KindUninitialized:
		return fmt.Sprintf("uninitialized(offset=%d)", t.offset)
	case KindReturnAddress:
		return fmt.Sprintf("returnAddress(offset=%d)", t.offset)
	case KindClass:
		return t.name
	case KindArray:
		brackets := ""
		for i := 0; i < t.dim; i++ {
			brackets += "["
		}
		return brackets + t.elem.String()
	default:
		return "?"
	}
}

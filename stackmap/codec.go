/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package stackmap implements the StackMapTable attribute codec
// (spec.md §4.6): compressing the trace engine's per-join-point frames
// into the classfile spec's seven delta-biased frame shapes, and the
// inverse. Grounded on jacobin's classloader.go stack-map parsing
// (itself a port of the JVM spec's StackMapTable_attribute grammar),
// generalized here to also encode, which jacobin's read-only loader
// never needed.
package stackmap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/jacobin-vm/classverify/cpool"
	"github.com/jacobin-vm/classverify/types"
	"github.com/jacobin-vm/classverify/verifyerr"
)

// ExplicitFrame is one decoded or pre-encode StackMapTable entry:
// absolute bytecode offset, full local-variable type sequence, and full
// operand-stack type sequence.
type ExplicitFrame struct {
	Offset int
	Locals []types.Type
	Stack  []types.Type
}

const (
	tagTop               = 0
	tagInteger           = 1
	tagFloat             = 2
	tagDouble            = 3
	tagLong              = 4
	tagNull              = 5
	tagUninitializedThis = 6
	tagObject            = 7
	tagUninitialized     = 8
)

func malformed(format string, args ...interface{}) error {
	return errors.WithStack(verifyerr.NewVerifyError([]verifyerr.Error{
		verifyerr.New(verifyerr.MalformedStackMap, nil, fmt.Sprintf(format, args...)),
	}))
}

// Encode serializes frames (already sorted or not; Encode sorts by
// Offset) relative to initialLocals, the implicit offset −1 frame
// derived from the method's own descriptor (spec.md §4.6: "Encode
// delta = offset − previous_offset − 1").
func Encode(pool *cpool.ConstantPool, initialLocals []types.Type, frames []ExplicitFrame) ([]byte, error) {
	sorted := make([]ExplicitFrame, len(frames))
	copy(sorted, frames)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	var buf bytes.Buffer
	writeU2(&buf, uint16(len(sorted)))

	prevOffset := -1
	prevLocals := initialLocals
	for _, fr := range sorted {
		delta := fr.Offset - prevOffset - 1
		if err := encodeFrame(pool, &buf, delta, prevLocals, fr.Locals, fr.Stack); err != nil {
			return nil, err
		}
		prevOffset = fr.Offset
		prevLocals = fr.Locals
	}
	return buf.Bytes(), nil
}

func encodeFrame(pool *cpool.ConstantPool, buf *bytes.Buffer, delta int, prevLocals, locals []types.Type, stack []types.Type) error {
	switch {
	case len(stack) == 0 && localsEqual(prevLocals, locals):
		if delta <= 63 {
			buf.WriteByte(byte(delta))
		} else {
			buf.WriteByte(251)
			writeU2(buf, uint16(delta))
		}
		return nil

	case len(stack) == 1 && localsEqual(prevLocals, locals):
		if delta <= 63 {
			buf.WriteByte(byte(64 + delta))
			return encodeType(pool, buf, stack[0])
		}
		buf.WriteByte(247)
		writeU2(buf, uint16(delta))
		return encodeType(pool, buf, stack[0])

	case len(stack) == 0 && isPrefix(locals, prevLocals) && len(prevLocals)-len(locals) >= 1 && len(prevLocals)-len(locals) <= 3:
		k := len(prevLocals) - len(locals)
		buf.WriteByte(byte(251 - k))
		writeU2(buf, uint16(delta))
		return nil

	case len(stack) == 0 && isPrefix(prevLocals, locals) && len(locals)-len(prevLocals) >= 1 && len(locals)-len(prevLocals) <= 3:
		k := len(locals) - len(prevLocals)
		buf.WriteByte(byte(251 + k))
		writeU2(buf, uint16(delta))
		for _, t := range locals[len(prevLocals):] {
			if err := encodeType(pool, buf, t); err != nil {
				return err
			}
		}
		return nil

	default:
		buf.WriteByte(255)
		writeU2(buf, uint16(delta))
		writeU2(buf, uint16(len(locals)))
		for _, t := range locals {
			if err := encodeType(pool, buf, t); err != nil {
				return err
			}
		}
		writeU2(buf, uint16(len(stack)))
		for _, t := range stack {
			if err := encodeType(pool, buf, t); err != nil {
				return err
			}
		}
		return nil
	}
}

func localsEqual(a, b []types.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func isPrefix(prefix, whole []types.Type) bool {
	if len(prefix) > len(whole) {
		return false
	}
	for i := range prefix {
		if !prefix[i].Equal(whole[i]) {
			return false
		}
	}
	return true
}

func encodeType(pool *cpool.ConstantPool, buf *bytes.Buffer, t types.Type) error {
	switch t.Kind() {
	case types.KindTop:
		buf.WriteByte(tagTop)
	case types.KindInt, types.KindBool, types.KindByte, types.KindShort, types.KindChar:
		buf.WriteByte(tagInteger)
	case types.KindFloat:
		buf.WriteByte(tagFloat)
	case types.KindDouble:
		buf.WriteByte(tagDouble)
	case types.KindLong:
		buf.WriteByte(tagLong)
	case types.KindNull:
		buf.WriteByte(tagNull)
	case types.KindUninitializedThis:
		buf.WriteByte(tagUninitializedThis)
	case types.KindUninitialized:
		buf.WriteByte(tagUninitialized)
		writeU2(buf, uint16(t.Offset()))
	case types.KindClass:
		buf.WriteByte(tagObject)
		writeU2(buf, uint16(pool.AddClass(t.ClassName())))
	case types.KindArray:
		buf.WriteByte(tagObject)
		writeU2(buf, uint16(pool.AddClass(cpool.ToFieldDescriptor(t))))
	default:
		return malformed("verification type %s has no StackMapTable encoding", t)
	}
	return nil
}

// Decode parses a StackMapTable attribute body back into explicit
// frames, resolving every delta against initialLocals/offset −1 exactly
// as Encode produced it. Unknown tags are fatal (spec.md §9: "this spec
// makes that a fatal MalformedStackMap", reversing the permissive
// silent-drop behavior of the reference loader this is grounded on).
func Decode(pool *cpool.ConstantPool, data []byte, initialLocals []types.Type) ([]ExplicitFrame, error) {
	c := &cursor{data: data}
	count, err := c.u2()
	if err != nil {
		return nil, err
	}

	var out []ExplicitFrame
	prevOffset := -1
	prevLocals := initialLocals
	for i := 0; i < int(count); i++ {
		tag, err := c.u1()
		if err != nil {
			return nil, err
		}

		var delta int
		var locals []types.Type
		var stack []types.Type

		switch {
		case tag <= 63:
			delta = int(tag)
			locals = prevLocals

		case tag <= 127:
			delta = int(tag) - 64
			locals = prevLocals
			t, err := decodeType(pool, c)
			if err != nil {
				return nil, err
			}
			stack = []types.Type{t}

		case tag < 247:
			return nil, malformed("reserved StackMapTable tag %d", tag)

		case tag == 247:
			d, err := c.u2()
			if err != nil {
				return nil, err
			}
			delta = int(d)
			locals = prevLocals
			t, err := decodeType(pool, c)
			if err != nil {
				return nil, err
			}
			stack = []types.Type{t}

		case tag >= 248 && tag <= 250:
			d, err := c.u2()
			if err != nil {
				return nil, err
			}
			delta = int(d)
			k := 251 - int(tag)
			if k > len(prevLocals) {
				return nil, malformed("chop_frame removes %d locals but only %d are live", k, len(prevLocals))
			}
			locals = append([]types.Type{}, prevLocals[:len(prevLocals)-k]...)

		case tag == 251:
			d, err := c.u2()
			if err != nil {
				return nil, err
			}
			delta = int(d)
			locals = prevLocals

		case tag >= 252 && tag <= 254:
			d, err := c.u2()
			if err != nil {
				return nil, err
			}
			delta = int(d)
			k := int(tag) - 251
			locals = append([]types.Type{}, prevLocals...)
			for j := 0; j < k; j++ {
				t, err := decodeType(pool, c)
				if err != nil {
					return nil, err
				}
				locals = append(locals, t)
			}

		case tag == 255:
			d, err := c.u2()
			if err != nil {
				return nil, err
			}
			delta = int(d)
			nLocals, err := c.u2()
			if err != nil {
				return nil, err
			}
			for j := 0; j < int(nLocals); j++ {
				t, err := decodeType(pool, c)
				if err != nil {
					return nil, err
				}
				locals = append(locals, t)
			}
			nStack, err := c.u2()
			if err != nil {
				return nil, err
			}
			for j := 0; j < int(nStack); j++ {
				t, err := decodeType(pool, c)
				if err != nil {
					return nil, err
				}
				stack = append(stack, t)
			}

		default:
			return nil, malformed("unknown StackMapTable tag %d", tag)
		}

		offset := prevOffset + delta + 1
		out = append(out, ExplicitFrame{Offset: offset, Locals: locals, Stack: stack})
		prevOffset = offset
		prevLocals = locals
	}
	return out, nil
}

func decodeType(pool *cpool.ConstantPool, c *cursor) (types.Type, error) {
	tag, err := c.u1()
	if err != nil {
		return types.Top, err
	}
	switch tag {
	case tagTop:
		return types.Top, nil
	case tagInteger:
		return types.Int, nil
	case tagFloat:
		return types.Float, nil
	case tagDouble:
		return types.Double, nil
	case tagLong:
		return types.Long, nil
	case tagNull:
		return types.Null, nil
	case tagUninitializedThis:
		return types.UninitializedThis, nil
	case tagObject:
		idx, err := c.u2()
		if err != nil {
			return types.Top, err
		}
		name, err := pool.GetClassName(int(idx))
		if err != nil {
			return types.Top, err
		}
		if len(name) > 0 && name[0] == '[' {
			if t, err := cpool.ParseFieldDescriptor(name, cpool.ParseOptions{}); err == nil {
				return t, nil
			}
		}
		return types.Class(name), nil
	case tagUninitialized:
		off, err := c.u2()
		if err != nil {
			return types.Top, err
		}
		return types.Uninitialized(int(off)), nil
	default:
		return types.Top, malformed("unknown verification type tag %d", tag)
	}
}

type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) u1() (byte, error) {
	if c.pos >= len(c.data) {
		return 0, malformed("StackMapTable truncated")
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) u2() (uint16, error) {
	if c.pos+2 > len(c.data) {
		return 0, malformed("StackMapTable truncated")
	}
	v := uint16(c.data[c.pos])<<8 | uint16(c.data[c.pos+1])
	c.pos += 2
	return v, nil
}

func writeU2(buf *bytes.Buffer, v uint16) { _ = binary.Write(buf, binary.BigEndian, v) }

/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classfile

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/jacobin-vm/classverify/cpool"
	"github.com/jacobin-vm/classverify/verifyerr"
)

// ExceptionTableEntry is one row of a Code attribute's exception table
// (JVM spec §4.7.3). CatchType is "" for a catch-all (finally) entry,
// i.e. when the on-disk catch_type index is 0.
type ExceptionTableEntry struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType string
}

// CodeAttribute is the in-memory Code attribute (JVM spec §4.7.3): the
// method's raw instruction stream, its declared operand-stack/locals
// bound, the exception table, and any nested attributes — principally
// StackMapTable, left as a RawAttribute for the stackmap package to
// decode on demand.
type CodeAttribute struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	ExceptionTable []ExceptionTableEntry
	Attributes     AttributeList
}

func (c *CodeAttribute) AttrName() string { return "Code" }

// StackMapTableRaw returns the nested StackMapTable attribute's bytes, if
// present.
func (c *CodeAttribute) StackMapTableRaw() ([]byte, bool) {
	return c.Attributes.Raw("StackMapTable")
}

func malformed(format string, args ...interface{}) error {
	return errors.WithStack(verifyerr.NewVerifyError([]verifyerr.Error{
		verifyerr.New(verifyerr.MalformedCode, nil, fmt.Sprintf(format, args...)),
	}))
}

// ReadCode decodes a Code attribute's body (the bytes following its
// attribute_name_index/attribute_length header) from r, resolving
// constant-pool indices via pool.
func ReadCode(pool *cpool.ConstantPool, r io.Reader) (*CodeAttribute, error) {
	c := &CodeAttribute{}

	var hdr struct {
		MaxStack  uint16
		MaxLocals uint16
		CodeLen   uint32
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, malformed("truncated Code attribute header: %v", err)
	}
	c.MaxStack = hdr.MaxStack
	c.MaxLocals = hdr.MaxLocals

	c.Code = make([]byte, hdr.CodeLen)
	if _, err := io.ReadFull(r, c.Code); err != nil {
		return nil, malformed("truncated Code attribute: code array shorter than declared %d bytes", hdr.CodeLen)
	}

	var excCount uint16
	if err := binary.Read(r, binary.BigEndian, &excCount); err != nil {
		return nil, malformed("truncated Code attribute: missing exception_table_length")
	}
	for i := uint16(0); i < excCount; i++ {
		var raw struct {
			StartPC, EndPC, HandlerPC, CatchTypeIdx uint16
		}
		if err := binary.Read(r, binary.BigEndian, &raw); err != nil {
			return nil, malformed("truncated Code attribute: exception table entry %d", i)
		}
		entry := ExceptionTableEntry{StartPC: raw.StartPC, EndPC: raw.EndPC, HandlerPC: raw.HandlerPC}
		if raw.CatchTypeIdx != 0 {
			name, err := pool.GetClassName(int(raw.CatchTypeIdx))
			if err != nil {
				return nil, err
			}
			entry.CatchType = name
		}
		c.ExceptionTable = append(c.ExceptionTable, entry)
	}

	attrs, err := readAttributes(pool, r)
	if err != nil {
		return nil, err
	}
	c.Attributes = attrs
	return c, nil
}

// WriteCode encodes c's body (everything after the attribute_name_index
// /attribute_length header, which the caller — Method.Write — supplies)
// into w, interning any class names it needs via pool.
func WriteCode(pool *cpool.ConstantPool, w io.Writer, c *CodeAttribute) error {
	hdr := struct {
		MaxStack  uint16
		MaxLocals uint16
		CodeLen   uint32
	}{c.MaxStack, c.MaxLocals, uint32(len(c.Code))}
	if err := binary.Write(w, binary.BigEndian, &hdr); err != nil {
		return err
	}
	if _, err := w.Write(c.Code); err != nil {
		return err
	}

	if err := binary.Write(w, binary.BigEndian, uint16(len(c.ExceptionTable))); err != nil {
		return err
	}
	for _, e := range c.ExceptionTable {
		var catchIdx uint16
		if e.CatchType != "" {
			catchIdx = uint16(pool.AddClass(e.CatchType))
		}
		raw := struct {
			StartPC, EndPC, HandlerPC, CatchTypeIdx uint16
		}{e.StartPC, e.EndPC, e.HandlerPC, catchIdx}
		if err := binary.Write(w, binary.BigEndian, &raw); err != nil {
			return err
		}
	}

	return writeAttributes(pool, w, c.Attributes)
}

// readAttributes decodes a generic attributes table (attributes_count u2
// followed by that many attribute_info records), leaving every entry as
// a RawAttribute — callers that care about a specific attribute (Code
// itself, StackMapTable) decode its Data separately.
func readAttributes(pool *cpool.ConstantPool, r io.Reader) (AttributeList, error) {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, malformed("truncated attributes table: missing attributes_count")
	}
	attrs := make(AttributeList, 0, count)
	for i := uint16(0); i < count; i++ {
		var nameIdx uint16
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &nameIdx); err != nil {
			return nil, malformed("truncated attribute %d: missing attribute_name_index", i)
		}
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, malformed("truncated attribute %d: missing attribute_length", i)
		}
		name, err := pool.GetUtf8(int(nameIdx))
		if err != nil {
			return nil, err
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, malformed("truncated attribute %q: body shorter than declared %d bytes", name, length)
		}
		attrs = append(attrs, RawAttribute{Name: name, Data: data})
	}
	return attrs, nil
}

func writeAttributes(pool *cpool.ConstantPool, w io.Writer, attrs AttributeList) error {
	if err := binary.Write(w, binary.BigEndian, uint16(len(attrs))); err != nil {
		return err
	}
	for _, a := range attrs {
		raw, ok := a.(RawAttribute)
		if !ok {
			return malformed("cannot encode typed attribute %q without a raw-bytes form", a.AttrName())
		}
		nameIdx := pool.AddUtf8(raw.Name)
		if err := binary.Write(w, binary.BigEndian, uint16(nameIdx)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint32(len(raw.Data))); err != nil {
			return err
		}
		if _, err := w.Write(raw.Data); err != nil {
			return err
		}
	}
	return nil
}

// SetStackMapTable replaces (or adds) the nested StackMapTable attribute
// with freshly encoded bytes, matching the teacher's pattern of mutating
// an attribute slot in place rather than rebuilding the whole table.
func (c *CodeAttribute) SetStackMapTable(data []byte) {
	for i, a := range c.Attributes {
		if a.AttrName() == "StackMapTable" {
			c.Attributes[i] = RawAttribute{Name: "StackMapTable", Data: data}
			return
		}
	}
	c.Attributes = append(c.Attributes, RawAttribute{Name: "StackMapTable", Data: data})
}

/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classfile

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/jacobin-vm/classverify/cpool"
)

// AccessFlags is a method_info access_flags bitmask (JVM spec table
// 4.6-A).
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSynchronized AccessFlags = 0x0020
	AccBridge       AccessFlags = 0x0040
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
)

func (f AccessFlags) has(bit AccessFlags) bool { return f&bit != 0 }

func (f AccessFlags) IsPublic() bool       { return f.has(AccPublic) }
func (f AccessFlags) IsPrivate() bool      { return f.has(AccPrivate) }
func (f AccessFlags) IsProtected() bool    { return f.has(AccProtected) }
func (f AccessFlags) IsStatic() bool       { return f.has(AccStatic) }
func (f AccessFlags) IsFinal() bool        { return f.has(AccFinal) }
func (f AccessFlags) IsSynchronized() bool { return f.has(AccSynchronized) }
func (f AccessFlags) IsBridge() bool       { return f.has(AccBridge) }
func (f AccessFlags) IsVarargs() bool      { return f.has(AccVarargs) }
func (f AccessFlags) IsNative() bool       { return f.has(AccNative) }
func (f AccessFlags) IsAbstract() bool     { return f.has(AccAbstract) }
func (f AccessFlags) IsStrict() bool       { return f.has(AccStrict) }
func (f AccessFlags) IsSynthetic() bool    { return f.has(AccSynthetic) }

// Method is a method_info record (JVM spec §4.6), reduced to what the
// analyzer needs: name, descriptor, flags, and — for anything with a
// body — its Code attribute. Abstract and native methods carry no Code.
type Method struct {
	Name       string
	Descriptor string
	Flags      AccessFlags
	Code       *CodeAttribute
	Attributes AttributeList
}

// HasCode reports whether this method declares a Code attribute, i.e.
// whether it is neither abstract nor native.
func (m *Method) HasCode() bool { return m.Code != nil }

// ReadMethod decodes one method_info record from r.
func ReadMethod(pool *cpool.ConstantPool, r io.Reader) (*Method, error) {
	var hdr struct {
		AccessFlags     uint16
		NameIndex       uint16
		DescriptorIndex uint16
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, malformed("truncated method_info header: %v", err)
	}
	name, err := pool.GetUtf8(int(hdr.NameIndex))
	if err != nil {
		return nil, err
	}
	desc, err := pool.GetUtf8(int(hdr.DescriptorIndex))
	if err != nil {
		return nil, err
	}

	attrs, err := readAttributes(pool, r)
	if err != nil {
		return nil, err
	}

	m := &Method{Name: name, Descriptor: desc, Flags: AccessFlags(hdr.AccessFlags)}
	var kept AttributeList
	for _, a := range attrs {
		raw, ok := a.(RawAttribute)
		if ok && raw.Name == "Code" {
			code, err := ReadCode(pool, bytes.NewReader(raw.Data))
			if err != nil {
				return nil, err
			}
			m.Code = code
			continue
		}
		kept = append(kept, a)
	}
	m.Attributes = kept
	return m, nil
}

// WriteMethod encodes m as a method_info record into w.
func WriteMethod(pool *cpool.ConstantPool, w io.Writer, m *Method) error {
	hdr := struct {
		AccessFlags     uint16
		NameIndex       uint16
		DescriptorIndex uint16
	}{uint16(m.Flags), uint16(pool.AddUtf8(m.Name)), uint16(pool.AddUtf8(m.Descriptor))}
	if err := binary.Write(w, binary.BigEndian, &hdr); err != nil {
		return err
	}

	attrs := m.Attributes
	if m.Code != nil {
		var buf bytes.Buffer
		if err := WriteCode(pool, &buf, m.Code); err != nil {
			return err
		}
		attrs = append(AttributeList{RawAttribute{Name: "Code", Data: buf.Bytes()}}, attrs...)
	}
	return writeAttributes(pool, w, attrs)
}

/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package cpool

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/jacobin-vm/classverify/verifyerr"
)

// ConstantPool is the ordered, 1-based constant-pool table (spec.md
// §4.1). Index 0 is never a valid entry, exactly as in the class file
// format; the second slot of a Long/Double is a reserved placeholder
// that Get rejects.
type ConstantPool struct {
	// entries[0] is always the unused zero slot. entries[i] is nil when i
	// is the trailing slot reserved by a wide (Long/Double) constant at
	// i-1.
	entries []*Constant
}

// New returns an empty pool (just the reserved zero slot).
func New() *ConstantPool {
	return &ConstantPool{entries: []*Constant{nil}}
}

// Count returns one past the highest valid index, matching the
// class-file constant_pool_count field.
func (p *ConstantPool) Count() int { return len(p.entries) }

// Get fetches the constant at a 1-based index. Fails with
// verifyerr.MalformedPool if the index is out of range or lands on the
// reserved second slot of a wide constant.
func (p *ConstantPool) Get(index int) (Constant, error) {
	if index < 1 || index >= len(p.entries) || p.entries[index] == nil {
		return Constant{}, errors.WithStack(verifyerr.NewVerifyError([]verifyerr.Error{
			verifyerr.New(verifyerr.MalformedPool, nil, fmt.Sprintf("constant pool index %d out of range (count=%d)", index, len(p.entries))),
		}))
	}
	return *p.entries[index], nil
}

// Add appends c, or returns the index of an existing structurally-equal
// entry (spec.md §4.1). Category-2 constants (Long, Double) reserve the
// following index with a nil placeholder.
func (p *ConstantPool) Add(c Constant) int {
	for i, e := range p.entries {
		if e != nil && e.Equal(c) {
			return i
		}
	}
	idx := len(p.entries)
	cp := c
	p.entries = append(p.entries, &cp)
	if c.Width() == 2 {
		p.entries = append(p.entries, nil)
	}
	return idx
}

// Each walks every valid entry in table order, skipping the zero slot
// and wide-constant placeholders. Used by
// classfile.ValidateConstantPool.
func (p *ConstantPool) Each(fn func(index int, c Constant)) {
	for i, e := range p.entries {
		if i == 0 || e == nil {
			continue
		}
		fn(i, *e)
	}
}

// GetUtf8 resolves index to a Utf8 constant's string content.
func (p *ConstantPool) GetUtf8(index int) (string, error) {
	c, err := p.Get(index)
	if err != nil {
		return "", err
	}
	if c.Tag != TagUtf8 {
		return "", errors.WithStack(verifyerr.NewVerifyError([]verifyerr.Error{
			verifyerr.New(verifyerr.MalformedPool, nil, fmt.Sprintf("constant pool index %d is not Utf8 (tag=%d)", index, c.Tag)),
		}))
	}
	return c.Utf8, nil
}

// GetClassName resolves index to a Class constant's class name.
func (p *ConstantPool) GetClassName(index int) (string, error) {
	c, err := p.Get(index)
	if err != nil {
		return "", err
	}
	if c.Tag != TagClass {
		return "", errors.WithStack(verifyerr.NewVerifyError([]verifyerr.Error{
			verifyerr.New(verifyerr.MalformedPool, nil, fmt.Sprintf("constant pool index %d is not Class (tag=%d)", index, c.Tag)),
		}))
	}
	return p.GetUtf8(int(c.NameIndex))
}

// AddUtf8 is a convenience wrapper over Add for the common case of
// interning a string.
func (p *ConstantPool) AddUtf8(s string) int {
	return p.Add(Constant{Tag: TagUtf8, Utf8: s})
}

// AddClass is a convenience wrapper that interns the class's name Utf8
// entry and then the Class entry itself.
func (p *ConstantPool) AddClass(name string) int {
	nameIdx := p.AddUtf8(name)
	return p.Add(Constant{Tag: TagClass, NameIndex: uint16(nameIdx)})
}

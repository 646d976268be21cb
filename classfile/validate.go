/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classfile

import (
	"fmt"

	"github.com/jacobin-vm/classverify/cpool"
	"github.com/jacobin-vm/classverify/verifyerr"
)

// ValidateConstantPool runs the structural checks the JVM specification
// requires of every entry in the pool (§4.4), generalized from jacobin's
// validateConstantPool onto cpool.ConstantPool's tagged-union storage:
// every index an entry carries must land on the right kind of entry, and
// every Utf8 entry must be free of the bytes forbidden on disk (a plain
// 0x00 byte, or any byte in 0xf0-0xff, which modified UTF-8 never
// uses in any position). Errors are
// accumulated, not raised fatally — a malformed pool still yields a
// useful multi-error report, per spec.md §7 ("recoverable errors
// accumulate").
func ValidateConstantPool(pool *cpool.ConstantPool) []verifyerr.Error {
	var errs []verifyerr.Error
	add := func(index int, format string, args ...interface{}) {
		errs = append(errs, verifyerr.New(verifyerr.MalformedPool, poolIndex(index), fmt.Sprintf(format, args...)))
	}

	pool.Each(func(index int, c cpool.Constant) {
		switch c.Tag {
		case cpool.TagUtf8:
			for _, b := range []byte(c.Utf8) {
				if b == 0x00 || (b >= 0xf0 && b <= 0xff) {
					add(index, "Utf8 entry contains a forbidden byte 0x%02x", b)
					break
				}
			}
		case cpool.TagClass, cpool.TagString, cpool.TagMethodType, cpool.TagModule, cpool.TagPackage:
			if _, err := pool.GetUtf8(int(c.NameIndex)); err != nil {
				add(index, "name/descriptor index %d does not resolve to a Utf8 entry", c.NameIndex)
			}
		case cpool.TagFieldref, cpool.TagMethodref, cpool.TagInterfaceMethodref:
			if class, err := pool.Get(int(c.ClassIndex)); err != nil || class.Tag != cpool.TagClass {
				add(index, "class_index %d does not resolve to a Class entry", c.ClassIndex)
			}
			if nat, err := pool.Get(int(c.NameAndTypeIdx)); err != nil || nat.Tag != cpool.TagNameAndType {
				add(index, "name_and_type_index %d does not resolve to a NameAndType entry", c.NameAndTypeIdx)
			}
			if c.Tag == cpool.TagMethodref {
				if name, err := methodRefName(pool, c); err == nil && len(name) > 0 && name[0] == '<' && name != "<init>" {
					add(index, "Methodref name %q is reserved and must be exactly <init>", name)
				}
			}
		case cpool.TagNameAndType:
			name, err := pool.GetUtf8(int(c.NameIndex))
			if err != nil {
				add(index, "name_index %d does not resolve to a Utf8 entry", c.NameIndex)
				break
			}
			desc, err := pool.GetUtf8(int(c.DescriptorIndex))
			if err != nil {
				add(index, "descriptor_index %d does not resolve to a Utf8 entry", c.DescriptorIndex)
				break
			}
			if len(desc) == 0 || !isDescriptorLead(desc[0]) {
				add(index, "NameAndType %q has a malformed descriptor %q", name, desc)
			}
		case cpool.TagMethodHandle:
			if c.RefKind < cpool.RefGetField || c.RefKind > cpool.RefInvokeInterface {
				add(index, "MethodHandle has an invalid reference_kind %d", c.RefKind)
			}
		}
	})
	return errs
}

func methodRefName(pool *cpool.ConstantPool, c cpool.Constant) (string, error) {
	nat, err := pool.Get(int(c.NameAndTypeIdx))
	if err != nil {
		return "", err
	}
	return pool.GetUtf8(int(nat.NameIndex))
}

func isDescriptorLead(c byte) bool {
	switch c {
	case '(', 'B', 'C', 'D', 'F', 'I', 'J', 'L', 'S', 'Z', '[':
		return true
	}
	return false
}

// poolIndex is a verifyerr.Source naming a constant-pool slot.
type poolIndex int

func (p poolIndex) String() string { return fmt.Sprintf("constant pool entry #%d", int(p)) }

/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package cpool implements the class-file constant pool (spec.md §4.1)
// and the descriptor/signature parser (spec.md §4.2).
//
// The pool's internal storage generalizes jacobin's slot-indirection
// scheme (CPutils.go's CpEntry{Type, Slot} indexing into per-kind
// slices) into a single ordered table of tagged Constant values, which
// is closer to kirjava's constant_pool model and lets Add perform
// structural-equality dedup directly.
package cpool

// Tag identifies a Constant's kind (JVM spec table 4.4-A).
type Tag uint8

const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

// RefKind is the reference_kind byte of a MethodHandle constant.
type RefKind uint8

const (
	RefGetField RefKind = iota + 1
	RefGetStatic
	RefPutField
	RefPutStatic
	RefInvokeVirtual
	RefInvokeStatic
	RefInvokeSpecial
	RefNewInvokeSpecial
	RefInvokeInterface
)

// Constant is the tagged union of constant-pool entries (spec.md §3).
// Index fields are 1-based pool indices, exactly as stored on disk.
type Constant struct {
	Tag Tag

	// TagUtf8
	Utf8 string
	// TagInteger
	Int int32
	// TagFloat
	Float float32
	// TagLong
	Long int64
	// TagDouble
	Double float64
	// TagClass, TagString, TagMethodType, TagModule, TagPackage: index of
	// a Utf8 constant (class name / string content / method-type
	// descriptor / module name / package name, respectively).
	NameIndex uint16
	// TagFieldref, TagMethodref, TagInterfaceMethodref: class index +
	// name_and_type index.
	ClassIndex      uint16
	NameAndTypeIdx  uint16
	// TagNameAndType: name index + descriptor index.
	DescriptorIndex uint16
	// TagMethodHandle
	RefKind  RefKind
	RefIndex uint16
	// TagDynamic, TagInvokeDynamic: bootstrap method table index +
	// name_and_type index (NameAndTypeIdx above is reused for the
	// latter).
	BootstrapMethodAttrIndex uint16
}

// Equal is the structural equality Add uses to dedup entries (spec.md
// §4.1: "returns the existing index if c is equal to an entry under
// structural equality").
func (c Constant) Equal(o Constant) bool {
	if c.Tag != o.Tag {
		return false
	}
	switch c.Tag {
	case TagUtf8:
		return c.Utf8 == o.Utf8
	case TagInteger:
		return c.Int == o.Int
	case TagFloat:
		return c.Float == o.Float
	case TagLong:
		return c.Long == o.Long
	case TagDouble:
		return c.Double == o.Double
	case TagClass, TagString, TagMethodType, TagModule, TagPackage:
		return c.NameIndex == o.NameIndex
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		return c.ClassIndex == o.ClassIndex && c.NameAndTypeIdx == o.NameAndTypeIdx
	case TagNameAndType:
		return c.NameIndex == o.NameIndex && c.DescriptorIndex == o.DescriptorIndex
	case TagMethodHandle:
		return c.RefKind == o.RefKind && c.RefIndex == o.RefIndex
	case TagDynamic, TagInvokeDynamic:
		return c.BootstrapMethodAttrIndex == o.BootstrapMethodAttrIndex && c.NameAndTypeIdx == o.NameAndTypeIdx
	default:
		return false
	}
}

// Width returns how many pool slots this constant occupies: 2 for
// Long/Double (spec.md §3: "Long/Double consume two slots"), 1
// otherwise.
func (c Constant) Width() int {
	if c.Tag == TagLong || c.Tag == TagDouble {
		return 2
	}
	return 1
}

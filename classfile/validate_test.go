/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-vm/classverify/cpool"
)

func TestValidateConstantPoolAcceptsWellFormedEntries(t *testing.T) {
	pool := cpool.New()
	pool.AddClass("java/lang/Object")
	nameIdx := pool.AddUtf8("value")
	descIdx := pool.AddUtf8("I")
	pool.Add(cpool.Constant{Tag: cpool.TagNameAndType, NameIndex: uint16(nameIdx), DescriptorIndex: uint16(descIdx)})

	errs := ValidateConstantPool(pool)
	assert.Empty(t, errs)
}

func TestValidateConstantPoolRejectsForbiddenUtf8Byte(t *testing.T) {
	pool := cpool.New()
	pool.Add(cpool.Constant{Tag: cpool.TagUtf8, Utf8: "bad\x00name"})

	errs := ValidateConstantPool(pool)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "forbidden byte")
}

func TestValidateConstantPoolRejectsDanglingClassNameIndex(t *testing.T) {
	pool := cpool.New()
	pool.Add(cpool.Constant{Tag: cpool.TagClass, NameIndex: 99})

	errs := ValidateConstantPool(pool)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "does not resolve to a Utf8 entry")
}

func TestValidateConstantPoolRejectsNonInitReservedMethodName(t *testing.T) {
	pool := cpool.New()
	classIdx := pool.AddClass("com/example/Foo")
	nameIdx := pool.AddUtf8("<clinit>")
	descIdx := pool.AddUtf8("()V")
	natIdx := pool.Add(cpool.Constant{Tag: cpool.TagNameAndType, NameIndex: uint16(nameIdx), DescriptorIndex: uint16(descIdx)})
	pool.Add(cpool.Constant{Tag: cpool.TagMethodref, ClassIndex: uint16(classIdx), NameAndTypeIdx: uint16(natIdx)})

	errs := ValidateConstantPool(pool)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[len(errs)-1].Message, "reserved")
}

func TestValidateConstantPoolRejectsMalformedDescriptorLead(t *testing.T) {
	pool := cpool.New()
	nameIdx := pool.AddUtf8("value")
	descIdx := pool.AddUtf8("not-a-descriptor")
	pool.Add(cpool.Constant{Tag: cpool.TagNameAndType, NameIndex: uint16(nameIdx), DescriptorIndex: uint16(descIdx)})

	errs := ValidateConstantPool(pool)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "malformed descriptor")
}

func TestValidateConstantPoolRejectsInvalidMethodHandleRefKind(t *testing.T) {
	pool := cpool.New()
	pool.Add(cpool.Constant{Tag: cpool.TagMethodHandle, RefKind: 10})

	errs := ValidateConstantPool(pool)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "invalid reference_kind")
}

/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-vm/classverify/cpool"
)

func TestMethodReadWriteRoundTripSplitsOutCode(t *testing.T) {
	pool := cpool.New()
	original := &Method{
		Name:       "add",
		Descriptor: "(II)I",
		Flags:      AccPublic | AccStatic,
		Code: &CodeAttribute{
			MaxStack:  2,
			MaxLocals: 2,
			Code:      []byte{0x1a, 0x1b, 0x60, 0xac}, // iload_0, iload_1, iadd, ireturn
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMethod(pool, &buf, original))

	decoded, err := ReadMethod(pool, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, "add", decoded.Name)
	assert.Equal(t, "(II)I", decoded.Descriptor)
	assert.True(t, decoded.Flags.IsPublic())
	assert.True(t, decoded.Flags.IsStatic())
	require.True(t, decoded.HasCode())
	assert.Equal(t, original.Code.Code, decoded.Code.Code)
	_, hasCodeAttr := decoded.Attributes.Find("Code")
	assert.False(t, hasCodeAttr, "Code must be lifted into Method.Code, not left in the generic attribute list")
}

func TestAbstractMethodHasNoCode(t *testing.T) {
	pool := cpool.New()
	original := &Method{Name: "doIt", Descriptor: "()V", Flags: AccPublic | AccAbstract}

	var buf bytes.Buffer
	require.NoError(t, WriteMethod(pool, &buf, original))

	decoded, err := ReadMethod(pool, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.False(t, decoded.HasCode())
}

func TestReadMethodTruncatedHeaderIsMalformed(t *testing.T) {
	pool := cpool.New()
	_, err := ReadMethod(pool, bytes.NewReader([]byte{0x00, 0x01}))
	assert.Error(t, err)
}

func TestAccessFlagsPredicates(t *testing.T) {
	f := AccPublic | AccFinal | AccSynthetic
	assert.True(t, f.IsPublic())
	assert.True(t, f.IsFinal())
	assert.True(t, f.IsSynthetic())
	assert.False(t, f.IsPrivate())
	assert.False(t, f.IsStatic())
}

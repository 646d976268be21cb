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

func TestCodeReadWriteRoundTrip(t *testing.T) {
	pool := cpool.New()

	original := &CodeAttribute{
		MaxStack:  2,
		MaxLocals: 1,
		Code:      []byte{0x03, 0xac}, // iconst_0, ireturn
		ExceptionTable: []ExceptionTableEntry{
			{StartPC: 0, EndPC: 1, HandlerPC: 1, CatchType: "java/lang/ArithmeticException"},
			{StartPC: 0, EndPC: 1, HandlerPC: 1}, // catch-all, CatchType == ""
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCode(pool, &buf, original))

	decoded, err := ReadCode(pool, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, original.MaxStack, decoded.MaxStack)
	assert.Equal(t, original.MaxLocals, decoded.MaxLocals)
	assert.Equal(t, original.Code, decoded.Code)
	require.Len(t, decoded.ExceptionTable, 2)
	assert.Equal(t, "java/lang/ArithmeticException", decoded.ExceptionTable[0].CatchType)
	assert.Equal(t, "", decoded.ExceptionTable[1].CatchType)
}

func TestReadCodeTruncatedHeaderIsMalformed(t *testing.T) {
	pool := cpool.New()
	_, err := ReadCode(pool, bytes.NewReader([]byte{0x00, 0x02}))
	assert.Error(t, err)
}

func TestReadCodeTruncatedCodeArrayIsMalformed(t *testing.T) {
	pool := cpool.New()
	// max_stack=1, max_locals=1, code_length=10, but no code bytes follow
	buf := []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x0a}
	_, err := ReadCode(pool, bytes.NewReader(buf))
	assert.Error(t, err)
}

func TestSetStackMapTableAddsThenReplaces(t *testing.T) {
	c := &CodeAttribute{}
	c.SetStackMapTable([]byte{0x01})
	raw, ok := c.StackMapTableRaw()
	require.True(t, ok)
	assert.Equal(t, []byte{0x01}, raw)

	c.SetStackMapTable([]byte{0x02, 0x03})
	require.Len(t, c.Attributes, 1, "a second call must replace, not duplicate, the entry")
	raw, ok = c.StackMapTableRaw()
	require.True(t, ok)
	assert.Equal(t, []byte{0x02, 0x03}, raw)
}

func TestCodeAttrNameIsCode(t *testing.T) {
	c := &CodeAttribute{}
	assert.Equal(t, "Code", c.AttrName())
}

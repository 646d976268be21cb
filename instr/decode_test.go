/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package instr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-vm/classverify/cpool"
)

func TestDecodeNoOperandInstructions(t *testing.T) {
	pool := cpool.New()
	code := []byte{byte(Nop), byte(Iconst0), byte(Ireturn)}
	instrs, err := Decode(pool, code)
	require.NoError(t, err)
	require.Len(t, instrs, 3)
	assert.Equal(t, Nop, instrs[0].Opcode)
	assert.Equal(t, 0, instrs[0].Offset)
	assert.Equal(t, 1, instrs[0].Length)
	assert.Equal(t, Iconst0, instrs[1].Opcode)
	assert.Equal(t, 1, instrs[1].Offset)
	assert.Equal(t, Ireturn, instrs[2].Opcode)
	assert.Equal(t, 2, instrs[2].Offset)
}

func TestDecodeBipushImmediate(t *testing.T) {
	pool := cpool.New()
	code := []byte{byte(Bipush), 0x7f}
	instrs, err := Decode(pool, code)
	require.NoError(t, err)
	require.Len(t, instrs, 1)
	assert.EqualValues(t, 127, instrs[0].IntImmediate)
	assert.Equal(t, 2, instrs[0].Length)
}

func TestDecodeGotoResolvesAbsoluteTarget(t *testing.T) {
	pool := cpool.New()
	// goto +3 from offset 0 -> target 3
	code := []byte{byte(Goto), 0x00, 0x03, byte(Nop)}
	instrs, err := Decode(pool, code)
	require.NoError(t, err)
	assert.Equal(t, 3, instrs[0].Target)
}

func TestDecodeUnknownOpcodeIsFatal(t *testing.T) {
	pool := cpool.New()
	code := []byte{0xcb} // unassigned in the JVM spec's opcode table
	_, err := Decode(pool, code)
	assert.Error(t, err)
}

func TestDecodeTruncatedStreamIsMalformedCode(t *testing.T) {
	pool := cpool.New()
	code := []byte{byte(Bipush)} // missing operand byte
	_, err := Decode(pool, code)
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pool := cpool.New()
	code := []byte{
		byte(Iconst0),
		byte(Bipush), 0x05,
		byte(Goto), 0x00, 0x02,
		byte(Nop),
		byte(Return),
	}
	instrs, err := Decode(pool, code)
	require.NoError(t, err)

	encoded, err := Encode(pool, instrs)
	require.NoError(t, err)
	assert.Equal(t, code, encoded)

	reDecoded, err := Decode(pool, encoded)
	require.NoError(t, err)
	require.Len(t, reDecoded, len(instrs))
	for i := range instrs {
		assert.Equal(t, instrs[i].Opcode, reDecoded[i].Opcode)
		assert.Equal(t, instrs[i].Offset, reDecoded[i].Offset)
	}
}

func TestDecodeWideLoadExtendsLocalIndexToU2(t *testing.T) {
	pool := cpool.New()
	code := []byte{byte(Wide), byte(Iload), 0x01, 0x00}
	instrs, err := Decode(pool, code)
	require.NoError(t, err)
	require.Len(t, instrs, 1)
	assert.True(t, instrs[0].Wide)
	assert.Equal(t, 256, instrs[0].LocalIndex)
}

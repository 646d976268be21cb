/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package verifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-vm/classverify/classfile"
	"github.com/jacobin-vm/classverify/cpool"
	"github.com/jacobin-vm/classverify/instr"
	"github.com/jacobin-vm/classverify/internal/vlog"
	"github.com/jacobin-vm/classverify/verifyerr"
)

func init() {
	vlog.SetLevel(vlog.SEVERE)
}

func TestVerifyCleanStaticMethodRegeneratesStackMapTable(t *testing.T) {
	pool := cpool.New()
	method := &classfile.Method{
		Name:       "add",
		Descriptor: "(II)I",
		Flags:      classfile.AccPublic | classfile.AccStatic,
		Code: &classfile.CodeAttribute{
			MaxStack:  2,
			MaxLocals: 2,
			Code: []byte{
				byte(instr.Iload0), byte(instr.Iload1), byte(instr.Iadd), byte(instr.Ireturn),
			},
		},
	}

	err := Verify(pool, "com/example/Calc", method, DefaultConfig())
	require.NoError(t, err)

	_, ok := method.Code.StackMapTableRaw()
	assert.True(t, ok, "Verify must (re)generate the StackMapTable attribute on success")
}

func TestVerifyAbstractOrNativeMethodIsSkipped(t *testing.T) {
	pool := cpool.New()
	method := &classfile.Method{Name: "doIt", Descriptor: "()V", Flags: classfile.AccAbstract}
	err := Verify(pool, "com/example/Calc", method, DefaultConfig())
	assert.NoError(t, err)
}

func TestVerifyTypeMismatchReturnsVerifyError(t *testing.T) {
	pool := cpool.New()
	method := &classfile.Method{
		Name:       "broken",
		Descriptor: "()I",
		Flags:      classfile.AccPublic | classfile.AccStatic,
		Code: &classfile.CodeAttribute{
			MaxStack:  2,
			MaxLocals: 0,
			Code: []byte{
				byte(instr.Fconst0), byte(instr.Iconst0), byte(instr.Iadd), byte(instr.Ireturn),
			},
		},
	}

	err := Verify(pool, "com/example/Calc", method, DefaultConfig())
	require.Error(t, err)
	var ve *verifyerr.VerifyError
	require.ErrorAs(t, err, &ve)
	require.NotEmpty(t, ve.Errors)
}

func TestVerifyMaxInstructionsRejectsOversizedMethod(t *testing.T) {
	pool := cpool.New()
	method := &classfile.Method{
		Name:       "tooLong",
		Descriptor: "()V",
		Flags:      classfile.AccPublic | classfile.AccStatic,
		Code: &classfile.CodeAttribute{
			MaxStack:  0,
			MaxLocals: 0,
			Code:      []byte{byte(instr.Nop), byte(instr.Nop), byte(instr.Return)},
		},
	}

	cfg := DefaultConfig()
	cfg.MaxInstructions = 2
	err := Verify(pool, "com/example/Calc", method, cfg)
	require.Error(t, err)
	var ve *verifyerr.VerifyError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Errors, 1)
	assert.Contains(t, ve.Errors[0].Message, "exceeding the configured bound")
}

func TestVerifyInstanceMethodOffsetsArgsAfterThis(t *testing.T) {
	pool := cpool.New()
	method := &classfile.Method{
		Name:       "identity",
		Descriptor: "(I)I",
		Flags:      classfile.AccPublic,
		Code: &classfile.CodeAttribute{
			MaxStack:  1,
			MaxLocals: 2, // local 0 = this, local 1 = the int argument
			Code:      []byte{byte(instr.Iload1), byte(instr.Ireturn)},
		},
	}

	err := Verify(pool, "com/example/Calc", method, DefaultConfig())
	assert.NoError(t, err)
}

func TestVerifyConstructorEntryFrameUsesUninitializedThis(t *testing.T) {
	pool := cpool.New()
	method := &classfile.Method{
		Name:       "<init>",
		Descriptor: "()V",
		Flags:      0,
		Code: &classfile.CodeAttribute{
			MaxStack:  0,
			MaxLocals: 1,
			Code:      []byte{byte(instr.Return)},
		},
	}

	err := Verify(pool, "com/example/Calc", method, DefaultConfig())
	assert.NoError(t, err)
}

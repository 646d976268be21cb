/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package instr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-vm/classverify/checker"
	"github.com/jacobin-vm/classverify/frame"
	"github.com/jacobin-vm/classverify/types"
	"github.com/jacobin-vm/classverify/verifyerr"
)

func TestTraceConstPushesLiteralType(t *testing.T) {
	f := frame.New(0)
	var errs []verifyerr.Error
	ins := &Instruction{Opcode: Iconst0}
	Trace(ins, nil, checker.Strict{}, f, frame.Origin{}, &errs)
	require.Len(t, f.Stack, 1)
	assert.True(t, f.Stack[0].Type.Equal(types.Int))
	assert.Empty(t, errs)
}

func TestTraceBinaryPopsTwoPushesOne(t *testing.T) {
	f := frame.New(0)
	f.Push(types.Int)
	f.Push(types.Int)
	var errs []verifyerr.Error
	ins := &Instruction{Opcode: Iadd}
	Trace(ins, nil, checker.Strict{}, f, frame.Origin{}, &errs)
	require.Len(t, f.Stack, 1)
	assert.True(t, f.Stack[0].Type.Equal(types.Int))
	assert.Empty(t, errs)
}

func TestTraceBinaryTypeMismatchReportsButStillPushesResult(t *testing.T) {
	f := frame.New(0)
	f.Push(types.Float)
	f.Push(types.Int)
	var errs []verifyerr.Error
	ins := &Instruction{Opcode: Iadd, Offset: 4}
	Trace(ins, nil, checker.Strict{}, f, frame.Origin{}, &errs)
	require.Len(t, f.Stack, 1, "trace must not abort on a recoverable type error")
	assert.True(t, f.Stack[0].Type.Equal(types.Int))
	assert.NotEmpty(t, errs)
}

func TestTraceLoadAndStoreRoundTripLocal(t *testing.T) {
	f := frame.New(2)
	require.NoError(t, f.SetLocal(0, types.Int))
	var errs []verifyerr.Error

	Trace(&Instruction{Opcode: Iload, LocalIndex: 0}, nil, checker.Strict{}, f, frame.Origin{}, &errs)
	require.Len(t, f.Stack, 1)
	assert.True(t, f.Stack[0].Type.Equal(types.Int))

	Trace(&Instruction{Opcode: Istore, LocalIndex: 1}, nil, checker.Strict{}, f, frame.Origin{}, &errs)
	assert.Empty(t, f.Stack)
	got, err := f.GetLocal(1)
	require.NoError(t, err)
	assert.True(t, got.Equal(types.Int))
	assert.Empty(t, errs)
}

func TestTraceImplicitIndexLoadUsesOpcodeEncodedIndex(t *testing.T) {
	f := frame.New(4)
	require.NoError(t, f.SetLocal(2, types.Int))
	var errs []verifyerr.Error
	Trace(&Instruction{Opcode: Iload2}, nil, checker.Strict{}, f, frame.Origin{}, &errs)
	require.Len(t, f.Stack, 1)
	assert.True(t, f.Stack[0].Type.Equal(types.Int))
	assert.Empty(t, errs)
}

func TestTraceNewPushesUninitializedTaggedWithOffset(t *testing.T) {
	f := frame.New(0)
	var errs []verifyerr.Error
	Trace(&Instruction{Opcode: New, Offset: 7, ClassName: "com/example/Foo"}, nil, checker.Strict{}, f, frame.Origin{}, &errs)
	require.Len(t, f.Stack, 1)
	assert.Equal(t, types.KindUninitialized, f.Stack[0].Type.Kind())
	assert.Equal(t, 7, f.Stack[0].Type.Offset())
}

func TestTraceInvokespecialInitSubstitutesUninitializedReceiver(t *testing.T) {
	f := frame.New(1)
	uninit := types.Uninitialized(3)
	require.NoError(t, f.SetLocal(0, uninit))
	f.Push(uninit)
	var errs []verifyerr.Error
	ins := &Instruction{
		Opcode: Invokespecial,
		Method: &MethodRef{ClassName: "com/example/Foo", Name: "<init>", ReturnType: types.Void},
	}
	Trace(ins, nil, checker.Strict{}, f, frame.Origin{}, &errs)
	assert.Empty(t, f.Stack, "a void <init> call leaves nothing on the stack")
	local, err := f.GetLocal(0)
	require.NoError(t, err)
	assert.True(t, local.Equal(types.Class("com/example/Foo")), "the stored copy of the receiver is now initialized")
}

func TestTraceRetRequiresReturnAddressLocal(t *testing.T) {
	f := frame.New(1)
	require.NoError(t, f.SetLocal(0, types.ReturnAddress(5)))
	var errs []verifyerr.Error
	Trace(&Instruction{Opcode: Ret, LocalIndex: 0}, nil, checker.Strict{}, f, frame.Origin{}, &errs)
	assert.Empty(t, errs)

	f2 := frame.New(1)
	require.NoError(t, f2.SetLocal(0, types.Int))
	var errs2 []verifyerr.Error
	Trace(&Instruction{Opcode: Ret, LocalIndex: 0}, nil, checker.Strict{}, f2, frame.Origin{}, &errs2)
	assert.NotEmpty(t, errs2)
}

func TestTraceStackOpsDup(t *testing.T) {
	f := frame.New(0)
	f.Push(types.Int)
	var errs []verifyerr.Error
	Trace(&Instruction{Opcode: Dup}, nil, checker.Strict{}, f, frame.Origin{}, &errs)
	require.Len(t, f.Stack, 2)
	assert.True(t, f.Stack[0].Type.Equal(types.Int))
	assert.True(t, f.Stack[1].Type.Equal(types.Int))
	assert.Empty(t, errs)
}

func TestTerminatesAndIsConditional(t *testing.T) {
	assert.True(t, Terminates(Return))
	assert.True(t, Terminates(Goto))
	assert.True(t, Terminates(Athrow))
	assert.False(t, Terminates(Nop))

	assert.True(t, IsConditional(Ifeq))
	assert.False(t, IsConditional(Goto))
}

func TestUnknownOpcodeHasNoTraceContract(t *testing.T) {
	f := frame.New(0)
	var errs []verifyerr.Error
	Trace(&Instruction{Opcode: Opcode(0xcb)}, nil, checker.Strict{}, f, frame.Origin{}, &errs)
	assert.NotEmpty(t, errs)
}

/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-vm/classverify/types"
)

func TestNewFrameHasAllTopLocalsAndEmptyStack(t *testing.T) {
	f := New(3)
	require.Len(t, f.Locals, 3)
	for _, l := range f.Locals {
		assert.True(t, l.Type.Equal(types.Top))
	}
	assert.Empty(t, f.Stack)
}

func TestSetLocalCategory2ReservesNextSlot(t *testing.T) {
	f := New(4)
	require.NoError(t, f.SetLocal(0, types.Long))
	got, err := f.GetLocal(0)
	require.NoError(t, err)
	assert.True(t, got.Equal(types.Long))

	_, err = f.GetLocal(1)
	assert.Error(t, err)
}

func TestSetLocalWideOverrunsMaxLocals(t *testing.T) {
	f := New(1)
	err := f.SetLocal(0, types.Double)
	assert.Error(t, err)
}

func TestPushPopRoundTrip(t *testing.T) {
	f := New(0)
	f.Push(types.Int)
	f.Push(types.Object)
	v, err := f.Pop()
	require.NoError(t, err)
	assert.True(t, v.Type.Equal(types.Object))
	v, err = f.Pop()
	require.NoError(t, err)
	assert.True(t, v.Type.Equal(types.Int))
}

func TestPopOnEmptyStackIsInvalidStackError(t *testing.T) {
	f := New(0)
	_, err := f.Pop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "underflow")
}

func TestStackWidthCountsCategory2Twice(t *testing.T) {
	f := New(0)
	f.Push(types.Int)
	f.Push(types.Long)
	assert.Equal(t, 3, f.StackWidth())
	assert.Equal(t, 2, len(f.Stack))
}

func TestCloneIsIndependent(t *testing.T) {
	f := New(1)
	f.Push(types.Int)
	cp := f.Clone()
	cp.Push(types.Object)
	require.NoError(t, cp.SetLocal(0, types.Float))

	assert.Len(t, f.Stack, 1)
	assert.Len(t, cp.Stack, 2)
	orig, _ := f.GetLocal(0)
	assert.True(t, orig.Equal(types.Top))
}

func TestEqualIgnoresProvenance(t *testing.T) {
	a := New(1)
	a.Push(types.Int, Origin{Block: 1, Index: 0})
	b := New(1)
	b.Push(types.Int, Origin{Block: 2, Index: 5})
	assert.True(t, a.Equal(b))
}

func TestSubstituteUninitializedRewritesEveryOccurrence(t *testing.T) {
	f := New(2)
	uninit := types.Uninitialized(4)
	require.NoError(t, f.SetLocal(0, uninit))
	f.Push(uninit)
	f.Push(types.Int)

	initialized := types.Class("com/example/Foo")
	f.SubstituteUninitialized(uninit, initialized)

	local, _ := f.GetLocal(0)
	assert.True(t, local.Equal(initialized))
	assert.True(t, f.Stack[0].Type.Equal(initialized))
	assert.True(t, f.Stack[1].Type.Equal(types.Int))
}

/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-vm/classverify/checker"
	"github.com/jacobin-vm/classverify/types"
	"github.com/jacobin-vm/classverify/verifyerr"
)

func TestMergeIdenticalFramesIsIdempotent(t *testing.T) {
	a := New(2)
	require.NoError(t, a.SetLocal(0, types.Int))
	a.Push(types.Object)

	var errs []verifyerr.Error
	merged := Merge(a, a.Clone(), checker.Strict{}, nil, &errs)
	assert.Empty(t, errs)
	assert.True(t, merged.Equal(a))
}

func TestMergeIsCommutative(t *testing.T) {
	a := New(1)
	require.NoError(t, a.SetLocal(0, types.Int))
	b := New(1)
	require.NoError(t, b.SetLocal(0, types.Float))

	var errs1, errs2 []verifyerr.Error
	ab := Merge(a, b, checker.Strict{}, nil, &errs1)
	ba := Merge(b, a, checker.Strict{}, nil, &errs2)
	assert.True(t, ab.Equal(ba))
	assert.Empty(t, errs1)
	assert.Empty(t, errs2)
}

func TestMergePadsShorterLocalsWithTop(t *testing.T) {
	a := New(1)
	require.NoError(t, a.SetLocal(0, types.Int))
	b := New(3)
	require.NoError(t, b.SetLocal(0, types.Int))

	var errs []verifyerr.Error
	merged := Merge(a, b, checker.Strict{}, nil, &errs)
	require.Len(t, merged.Locals, 3)
	assert.True(t, merged.Locals[0].Type.Equal(types.Int))
	assert.True(t, merged.Locals[1].Type.Equal(types.Top))
	assert.True(t, merged.Locals[2].Type.Equal(types.Top))
}

func TestMergeMismatchedStackHeightsReportsInvalidStack(t *testing.T) {
	a := New(0)
	a.Push(types.Int)
	b := New(0)
	b.Push(types.Int)
	b.Push(types.Object)

	var errs []verifyerr.Error
	merged := Merge(a, b, checker.Strict{}, verifyerr.BlockLabel(3), &errs)
	require.Len(t, errs, 1)
	assert.Equal(t, verifyerr.InvalidStack, errs[0].Kind)
	assert.Len(t, merged.Stack, 1)
}

func TestMergeReferenceTypesDelegatesToChecker(t *testing.T) {
	a := New(0)
	a.Push(types.Class("java/lang/String"))
	b := New(0)
	b.Push(types.Class("java/util/List"))

	var errs []verifyerr.Error
	merged := Merge(a, b, checker.Strict{}, nil, &errs)
	assert.True(t, merged.Stack[0].Type.Equal(types.Object))
	assert.Len(t, errs, 1)
}

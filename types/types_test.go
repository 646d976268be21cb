/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package types

import "testing"

import "github.com/stretchr/testify/assert"

func TestCategory(t *testing.T) {
	assert.Equal(t, 2, Long.Category())
	assert.Equal(t, 2, Double.Category())
	assert.Equal(t, 1, Int.Category())
	assert.Equal(t, 1, Object.Category())
	assert.Equal(t, 1, Void.Category())
}

func TestVoidDistinctFromTop(t *testing.T) {
	assert.NotEqual(t, Top.Kind(), Void.Kind())
	assert.False(t, Void.Equal(Top))
}

func TestClassEquality(t *testing.T) {
	a := Class("java/lang/String")
	b := Class("java/lang/String")
	c := Class("java/lang/Object")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestArrayEquality(t *testing.T) {
	a := Array(Int, 2)
	b := Array(Int, 2)
	c := Array(Int, 1)
	d := Array(Long, 2)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}

func TestArrayElementUnwrapsOneDimensionAtATime(t *testing.T) {
	arr := Array(Int, 3)
	assert.Equal(t, 3, arr.Dimension())
	one := arr.Element()
	assert.Equal(t, 2, one.Dimension())
	two := one.Element()
	assert.Equal(t, 1, two.Dimension())
	leaf := two.Element()
	assert.Equal(t, 0, leaf.Dimension())
	assert.True(t, leaf.Equal(Int))
}

func TestUninitializedCarriesOffsetAndIsDistinctPerSite(t *testing.T) {
	a := Uninitialized(10)
	b := Uninitialized(10)
	c := Uninitialized(20)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, 10, a.Offset())
}

func TestReturnAddressDistinctPerCallSite(t *testing.T) {
	a := ReturnAddress(5)
	b := ReturnAddress(5)
	c := ReturnAddress(9)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, KindReturnAddress, a.Kind())
	assert.False(t, a.IsPrimitive())
	assert.False(t, a.IsReference())
}

func TestIsPrimitiveIsReferenceAreDisjoint(t *testing.T) {
	for _, ty := range []Type{Int, Float, Long, Double, Bool, Byte, Short, Char} {
		assert.True(t, ty.IsPrimitive())
		assert.False(t, ty.IsReference())
	}
	for _, ty := range []Type{Object, Null, UninitializedThis, Uninitialized(0), Array(Int, 1)} {
		assert.True(t, ty.IsReference())
		assert.False(t, ty.IsPrimitive())
	}
}

func TestStringFormsAreStable(t *testing.T) {
	assert.Equal(t, "int", Int.String())
	assert.Equal(t, "void", Void.String())
	assert.Equal(t, "top", Top.String())
	assert.Equal(t, "java/lang/String", Class("java/lang/String").String())
	assert.Equal(t, "[[int", Array(Int, 2).String())
	assert.Equal(t, "uninitialized(offset=3)", Uninitialized(3).String())
	assert.Equal(t, "returnAddress(offset=7)", ReturnAddress(7).String())
}

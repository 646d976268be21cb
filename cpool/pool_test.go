/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package cpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolHasOnlyTheReservedZeroSlot(t *testing.T) {
	p := New()
	assert.Equal(t, 1, p.Count())
	_, err := p.Get(0)
	assert.Error(t, err)
}

func TestAddDedupsStructurallyEqualEntries(t *testing.T) {
	p := New()
	a := p.AddUtf8("hello")
	b := p.AddUtf8("hello")
	c := p.AddUtf8("world")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestAddWideConstantReservesTrailingSlot(t *testing.T) {
	p := New()
	idx := p.Add(Constant{Tag: TagLong, Long: 42})
	countBefore := p.Count()
	_, err := p.Get(idx + 1)
	assert.Error(t, err, "the trailing slot of a wide constant must not resolve")
	assert.Equal(t, idx+2, countBefore)
}

func TestGetOutOfRangeIsMalformedPool(t *testing.T) {
	p := New()
	_, err := p.Get(5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestGetUtf8RejectsWrongTag(t *testing.T) {
	p := New()
	idx := p.Add(Constant{Tag: TagInteger, Int: 1})
	_, err := p.GetUtf8(idx)
	assert.Error(t, err)
}

func TestAddClassInternsNameThenClassEntry(t *testing.T) {
	p := New()
	idx := p.AddClass("java/lang/String")
	name, err := p.GetClassName(idx)
	require.NoError(t, err)
	assert.Equal(t, "java/lang/String", name)

	again := p.AddClass("java/lang/String")
	assert.Equal(t, idx, again)
}

func TestEachSkipsZeroSlotAndWidePlaceholders(t *testing.T) {
	p := New()
	p.Add(Constant{Tag: TagLong, Long: 1})
	p.AddUtf8("x")

	var seen []int
	p.Each(func(index int, c Constant) { seen = append(seen, index) })
	assert.Equal(t, []int{1, 3}, seen)
}

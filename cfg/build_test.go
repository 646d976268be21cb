/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-vm/classverify/classfile"
	"github.com/jacobin-vm/classverify/cpool"
	"github.com/jacobin-vm/classverify/instr"
)

func decode(t *testing.T, code []byte) []*instr.Instruction {
	t.Helper()
	instrs, err := instr.Decode(cpool.New(), code)
	require.NoError(t, err)
	return instrs
}

func TestBuildSimpleReturnHasOneBlockAndOneReturnBlock(t *testing.T) {
	code := []byte{byte(instr.Iconst0), byte(instr.Ireturn)}
	g, err := Build(decode(t, code), nil)
	require.NoError(t, err)

	entryOut := g.Block(g.Entry).Out
	require.Len(t, entryOut, 1)
	assert.Equal(t, Fallthrough, entryOut[0].Kind)

	blk := g.Block(entryOut[0].To)
	require.Len(t, blk.Out, 1)
	assert.Equal(t, Fallthrough, blk.Out[0].Kind)
	assert.Equal(t, KindReturn, g.Block(blk.Out[0].To).Kind)
}

func TestBuildIfJoinProducesOneBlockWithTwoIncomingJumps(t *testing.T) {
	// 0: iconst_0         1: ifeq -> 8          4: iconst_1
	// 5: goto -> 8        8: pop                9: return
	code := []byte{
		byte(instr.Iconst0),
		byte(instr.Ifeq), 0x00, 0x07,
		byte(instr.Iconst1),
		byte(instr.Goto), 0x00, 0x03,
		byte(instr.Pop),
		byte(instr.Return),
	}
	g, err := Build(decode(t, code), nil)
	require.NoError(t, err)

	block0 := g.Block(0)
	require.Len(t, block0.Out, 2)
	var jumpTo, fallTo int
	for _, e := range block0.Out {
		switch e.Kind {
		case Jump:
			jumpTo = e.To
		case Fallthrough:
			fallTo = e.To
		}
	}
	assert.Equal(t, 8, jumpTo)
	assert.Equal(t, 4, fallTo)

	block4 := g.Block(4)
	require.Len(t, block4.Out, 1)
	assert.Equal(t, Jump, block4.Out[0].Kind)
	assert.Equal(t, 8, block4.Out[0].To)

	incoming := 0
	for _, label := range g.Ordered() {
		for _, e := range g.Block(label).Out {
			if e.To == 8 {
				incoming++
			}
		}
	}
	assert.Equal(t, 2, incoming, "block 8 is a join point reached from both branches")
}

func TestBuildExceptionEdgeOnlyFromOverlappingBlock(t *testing.T) {
	// 0: iconst_0 (try)   1: return (outside try, end_pc=1)
	// 2: pop (handler)    3: athrow
	code := []byte{
		byte(instr.Iconst0),
		byte(instr.Return),
		byte(instr.Pop),
		byte(instr.Athrow),
	}
	table := []classfile.ExceptionTableEntry{{StartPC: 0, EndPC: 1, HandlerPC: 2}}
	g, err := Build(decode(t, code), table)
	require.NoError(t, err)

	block0 := g.Block(0)
	var sawException bool
	for _, e := range block0.Out {
		if e.Kind == Exception {
			sawException = true
			assert.Equal(t, 2, e.To)
		}
	}
	assert.True(t, sawException)

	block1 := g.Block(1)
	for _, e := range block1.Out {
		assert.NotEqual(t, Exception, e.Kind, "block starting at end_pc is outside the protected region")
	}
}

func TestBuildRejectsBranchToNonBoundary(t *testing.T) {
	code := []byte{
		byte(instr.Goto), 0x00, 0x02, // target = 0+2 = 2, lands mid-instruction-less region
	}
	_, err := Build(decode(t, code), nil)
	assert.Error(t, err)
}

func TestBuildJsrRetProducesJsrJumpAndJsrFallthrough(t *testing.T) {
	// 0: jsr -> 4        3: return           4: astore_0  5: ret 0
	code := []byte{
		byte(instr.Jsr), 0x00, 0x04,
		byte(instr.Return),
		byte(instr.Astore0),
		byte(instr.Ret), 0x00,
	}
	g, err := Build(decode(t, code), nil)
	require.NoError(t, err)

	block0 := g.Block(0)
	require.Len(t, block0.Out, 2)
	var sawJsrJump, sawJsrFallthrough bool
	for _, e := range block0.Out {
		if e.Kind == JsrJump {
			sawJsrJump = true
			assert.Equal(t, 4, e.To)
		}
		if e.Kind == JsrFallthrough {
			sawJsrFallthrough = true
			assert.Equal(t, 3, e.To)
		}
	}
	assert.True(t, sawJsrJump)
	assert.True(t, sawJsrFallthrough)

	block4 := g.Block(4)
	require.Len(t, block4.Out, 1)
	assert.Equal(t, Ret, block4.Out[0].Kind)
	assert.False(t, block4.Out[0].RetResolved)
}

/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-vm/classverify/cfg"
	"github.com/jacobin-vm/classverify/checker"
	"github.com/jacobin-vm/classverify/classfile"
	"github.com/jacobin-vm/classverify/cpool"
	"github.com/jacobin-vm/classverify/frame"
	"github.com/jacobin-vm/classverify/instr"
	"github.com/jacobin-vm/classverify/types"
)

func buildGraph(t *testing.T, code []byte, table []classfile.ExceptionTableEntry) *cfg.Graph {
	t.Helper()
	instrs, err := instr.Decode(cpool.New(), code)
	require.NoError(t, err)
	g, err := cfg.Build(instrs, table)
	require.NoError(t, err)
	return g
}

func TestRunSimpleReturnProducesNoErrors(t *testing.T) {
	code := []byte{byte(instr.Iconst0), byte(instr.Ireturn)}
	g := buildGraph(t, code, nil)
	initial := frame.New(0)

	result, err := Run(cpool.New(), g, initial, checker.Strict{})
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.True(t, result.PreFrames[0].Equal(initial))
}

func TestRunIfJoinMergesToASingleConsistentStackFrame(t *testing.T) {
	// 0: iconst_0        1: ifeq -> 8          4: iconst_1
	// 5: goto -> 9        8: iconst_2           9: pop
	// 10: return
	code := []byte{
		byte(instr.Iconst0),
		byte(instr.Ifeq), 0x00, 0x07,
		byte(instr.Iconst1),
		byte(instr.Goto), 0x00, 0x04,
		byte(instr.Iconst2),
		byte(instr.Pop),
		byte(instr.Return),
	}
	g := buildGraph(t, code, nil)
	initial := frame.New(0)

	result, err := Run(cpool.New(), g, initial, checker.Strict{})
	require.NoError(t, err)
	assert.Empty(t, result.Errors, "both branches push a single int before the join, so no merge error should surface")

	joined, ok := result.PreFrames[9]
	require.True(t, ok, "block 9 is reached from both branches and must have a merged pre-frame")
	require.Len(t, joined.Stack, 1)
	assert.True(t, joined.Stack[0].Type.Equal(types.Int))
}

func TestRunExceptionEdgeSeedsHandlerFrameWithThrowableOnStack(t *testing.T) {
	// 0: iconst_0 (try)   1: return (end_pc=1)
	// 2: pop (handler)    3: athrow
	code := []byte{
		byte(instr.Iconst0),
		byte(instr.Return),
		byte(instr.Pop),
		byte(instr.Athrow),
	}
	table := []classfile.ExceptionTableEntry{{StartPC: 0, EndPC: 1, HandlerPC: 2, CatchType: "java/lang/ArithmeticException"}}
	g := buildGraph(t, code, table)
	initial := frame.New(0)

	result, err := Run(cpool.New(), g, initial, checker.Strict{})
	require.NoError(t, err)

	handlerPre, ok := result.PreFrames[2]
	require.True(t, ok)
	require.Len(t, handlerPre.Stack, 1)
	assert.True(t, handlerPre.Stack[0].Type.Equal(types.Class("java/lang/ArithmeticException")))
}

func TestRunTwoCallSitesProduceTwoResolvedRetEdges(t *testing.T) {
	// 0: jsr -> 8          3: nop              4: jsr -> 8
	// 7: return            8: astore_0         9: ret 0
	code := []byte{
		byte(instr.Jsr), 0x00, 0x08,
		byte(instr.Nop),
		byte(instr.Jsr), 0x00, 0x04,
		byte(instr.Return),
		byte(instr.Astore0),
		byte(instr.Ret), 0x00,
	}
	g := buildGraph(t, code, nil)
	initial := frame.New(1)

	_, err := Run(cpool.New(), g, initial, checker.Strict{})
	require.NoError(t, err)

	subEntry := g.Block(0).Out
	var jsrJumpTarget int
	for _, e := range subEntry {
		if e.Kind == cfg.JsrJump {
			jsrJumpTarget = e.To
		}
	}
	require.NotZero(t, jsrJumpTarget)

	block := g.Block(jsrJumpTarget)
	var rets []*cfg.Edge
	for _, e := range block.Out {
		if e.Kind == cfg.Ret {
			rets = append(rets, e)
		}
	}
	require.Len(t, rets, 2, "the ret must fan out to exactly one edge per call site, not duplicate across fixpoint passes")

	targets := map[int]bool{}
	for _, e := range rets {
		assert.True(t, e.RetResolved)
		targets[e.To] = true
	}
	assert.True(t, targets[3], "the first call site's fallthrough must be a ret target")
	assert.True(t, targets[7], "the second call site's fallthrough must be a ret target")
}

/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package interp implements the work-list abstract interpreter that
// drives instr.Trace over a cfg.Graph to a fixpoint (spec.md §4.5),
// grounded on kirjava analysis/trace.py's Tracer.trace main loop:
// visit a block, advance its frame through every instruction, propagate
// the result along each outgoing edge, and keep going until no block's
// incoming frame changes.
package interp

import (
	"fmt"
	"sort"

	"github.com/jacobin-vm/classverify/cfg"
	"github.com/jacobin-vm/classverify/checker"
	"github.com/jacobin-vm/classverify/cpool"
	"github.com/jacobin-vm/classverify/frame"
	"github.com/jacobin-vm/classverify/instr"
	"github.com/jacobin-vm/classverify/types"
	"github.com/jacobin-vm/classverify/verifyerr"
)

// maxPasses is a defensive cutoff on the fixpoint loop. The verification
// type lattice is finite and every merge is monotonic non-decreasing in
// information loss (spec.md §8 P5's termination guarantee), so a real
// method never approaches this; it exists only to fail loudly instead of
// hanging if that invariant is ever violated by a future change.
const maxPasses = 10000

// Result is one method trace's output: the merged incoming frame at
// every block (used by the verifier to regenerate StackMapTable entries
// at join points) plus every recoverable error the trace accumulated.
type Result struct {
	PreFrames map[int]*frame.Frame
	Errors    []verifyerr.Error
}

// subroutineInfo is computed once before tracing: which blocks belong to
// which jsr target (its "body", found by a graph walk that does not
// cross into a nested call), and which return-site labels each
// subroutine's `ret` must fan out to — spec.md §4.5: "the engine merges
// their frames but preserves the set of possible return labels, yielding
// multiple Ret edges (one per label)."
type subroutineInfo struct {
	owner        map[int]int   // block label -> subroutine entry label
	returnLabels map[int][]int // subroutine entry label -> JsrFallthrough target labels
}

func analyzeSubroutines(g *cfg.Graph) *subroutineInfo {
	info := &subroutineInfo{owner: map[int]int{}, returnLabels: map[int][]int{}}
	for _, label := range g.Ordered() {
		blk := g.Block(label)
		var subEntry, retSite int
		var hasJsr, hasFallthrough bool
		for _, e := range blk.Out {
			if e.Kind == cfg.JsrJump {
				subEntry, hasJsr = e.To, true
			}
			if e.Kind == cfg.JsrFallthrough {
				retSite, hasFallthrough = e.To, true
			}
		}
		if !hasJsr {
			continue
		}
		if hasFallthrough {
			info.returnLabels[subEntry] = append(info.returnLabels[subEntry], retSite)
		}
		if _, seen := info.owner[subEntry]; seen {
			continue
		}
		queue := []int{subEntry}
		info.owner[subEntry] = subEntry
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, e := range g.Block(cur).Out {
				switch e.Kind {
				case cfg.Fallthrough, cfg.Jump, cfg.Switch, cfg.Exception:
					if _, seen := info.owner[e.To]; !seen {
						info.owner[e.To] = subEntry
						queue = append(queue, e.To)
					}
				}
			}
		}
	}
	return info
}

// Run traces g to a fixpoint starting from initial at g's entry
// successor. pool resolves nothing further at this stage (every operand
// instr.Decode could resolve already has been); it is threaded through
// purely because instr.Trace's signature takes it.
func Run(pool *cpool.ConstantPool, g *cfg.Graph, initial *frame.Frame, tc checker.TypeChecker) (*Result, error) {
	subs := analyzeSubroutines(g)
	pre := map[int]*frame.Frame{}
	queued := map[int]bool{}
	retResolved := map[int]bool{}
	var queue []int
	var errs []verifyerr.Error

	enqueue := func(label int) {
		if !queued[label] {
			queued[label] = true
			queue = append(queue, label)
		}
	}

	entryOut := g.Block(g.Entry).Out
	if len(entryOut) != 1 {
		return nil, malformed(0, "entry block must have exactly one outgoing edge")
	}
	firstReal := entryOut[0].To
	pre[firstReal] = initial
	enqueue(firstReal)

	passes := 0
	for len(queue) > 0 {
		passes++
		if passes > maxPasses {
			return nil, malformed(0, "trace did not reach a fixpoint within the pass budget")
		}
		sort.Ints(queue)
		label := queue[0]
		queue = queue[1:]
		queued[label] = false

		blk := g.Block(label)
		if blk.Kind == cfg.KindReturn || blk.Kind == cfg.KindRethrow {
			continue
		}

		post := pre[label].Clone()
		for i, ins := range blk.Instructions {
			origin := frame.Origin{Block: label, Index: i}
			instr.Trace(ins, pool, tc, post, origin, &errs)
		}

		var retLocalIdx = -1
		if len(blk.Instructions) > 0 {
			if last := blk.Instructions[len(blk.Instructions)-1]; last.Opcode == instr.Ret {
				retLocalIdx = last.LocalIndex
			}
		}

		retHandled := false
		for _, e := range blk.Out {
			switch e.Kind {
			case cfg.Fallthrough, cfg.Jump:
				propagate(pre, enqueue, tc, e.To, post, &errs)

			case cfg.Switch:
				propagate(pre, enqueue, tc, e.To, post, &errs)

			case cfg.JsrJump:
				subPre := post.Clone()
				target := subroutineFallthroughLabel(blk, e)
				replaceTopReturnAddress(subPre, target)
				propagate(pre, enqueue, tc, e.To, subPre, &errs)

			case cfg.JsrFallthrough:
				// Structural only: the real incoming frame for the return
				// site arrives via the matching Ret edge once the
				// subroutine's `ret` resolves it (spec.md §4.5).

			case cfg.Ret:
				// A block ending in `ret` starts with exactly one Ret edge
				// (cfg.Build); it is fanned out into one edge per call
				// site's return label the first time this block is traced.
				// retResolved guards that fan-out so re-enqueuing the
				// subroutine body while frames still settle toward the
				// fixpoint revisits this case without re-appending edges
				// it already built. retHandled keeps a single dequeue from
				// re-propagating once per physical Ret edge once there is
				// more than one.
				if retHandled {
					continue
				}
				retHandled = true

				subEntry := subs.owner[label]
				targets := subs.returnLabels[subEntry]
				cleared := post.Clone()
				if retLocalIdx >= 0 {
					cleared.Locals[retLocalIdx] = frame.Value{Type: types.Top}
				}
				if !retResolved[label] {
					retResolved[label] = true
					for i, target := range targets {
						if i == 0 {
							e.To = target
							e.RetResolved = true
						} else {
							blk.Out = append(blk.Out, &cfg.Edge{From: label, To: target, Kind: cfg.Ret, Instr: e.Instr, RetResolved: true})
						}
					}
				}
				for _, target := range targets {
					propagate(pre, enqueue, tc, target, cleared, &errs)
				}

			case cfg.Exception:
				handlerPre := &frame.Frame{
					Locals: cloneValues(pre[label].Locals),
					Stack:  []frame.Value{{Type: e.Throwable}},
				}
				propagate(pre, enqueue, tc, e.To, handlerPre, &errs)
			}
		}
	}

	return &Result{PreFrames: pre, Errors: errs}, nil
}

func subroutineFallthroughLabel(blk *cfg.Block, jsrJump *cfg.Edge) int {
	for _, e := range blk.Out {
		if e.Kind == cfg.JsrFallthrough && e.Instr == jsrJump.Instr {
			return e.To
		}
	}
	return jsrJump.From
}

func replaceTopReturnAddress(f *frame.Frame, fallthroughLabel int) {
	if len(f.Stack) == 0 {
		return
	}
	top := len(f.Stack) - 1
	if f.Stack[top].Type.Kind() == types.KindReturnAddress {
		f.Stack[top].Type = types.ReturnAddress(fallthroughLabel)
	}
}

func cloneValues(vs []frame.Value) []frame.Value {
	cp := make([]frame.Value, len(vs))
	copy(cp, vs)
	return cp
}

// propagate merges incoming into target's current pre-frame (or installs
// it directly if target has no pre-frame yet), enqueueing target only
// when the merge actually changed its frame — the fixpoint stop
// condition (spec.md §4.5, §8 P5).
func propagate(pre map[int]*frame.Frame, enqueue func(int), tc checker.TypeChecker, target int, incoming *frame.Frame, errs *[]verifyerr.Error) {
	existing, ok := pre[target]
	if !ok {
		pre[target] = incoming
		enqueue(target)
		return
	}
	merged := frame.Merge(existing, incoming, tc, verifyerr.BlockLabel(target), errs)
	if !merged.Equal(existing) {
		pre[target] = merged
		enqueue(target)
	}
}

func malformed(offset int, format string, args ...interface{}) error {
	return verifyerr.Fatal(nil, verifyerr.MalformedCode, verifyerr.BlockLabel(offset), fmt.Sprintf(format, args...))
}

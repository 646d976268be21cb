/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package cfg

import (
	"fmt"
	"sort"

	"github.com/jacobin-vm/classverify/classfile"
	"github.com/jacobin-vm/classverify/instr"
	"github.com/jacobin-vm/classverify/types"
	"github.com/jacobin-vm/classverify/verifyerr"
)

const (
	entryLabel   = -1
	rethrowLabel = -2
)

func malformed(offset int, format string, args ...interface{}) error {
	return verifyerr.Fatal(nil, verifyerr.MalformedCode, offsetSource(offset), fmt.Sprintf(format, args...))
}

type offsetSource int

func (o offsetSource) String() string { return fmt.Sprintf("bytecode offset %d", int(o)) }

// Build assembles the typed control-flow graph for one method body
// (spec.md §4.4). instrs is the already-decoded, ascending-offset
// instruction list (instr.Decode's output); exceptionTable is the
// method's Code attribute exception table in file order, whose index is
// used as each resulting Exception edge's priority.
func Build(instrs []*instr.Instruction, exceptionTable []classfile.ExceptionTableEntry) (*Graph, error) {
	if len(instrs) == 0 {
		return nil, malformed(0, "method body has no instructions")
	}
	codeLen := instrs[len(instrs)-1].Offset + instrs[len(instrs)-1].Length

	byOffset := make(map[int]*instr.Instruction, len(instrs))
	for _, ins := range instrs {
		byOffset[ins.Offset] = ins
	}

	leaders := map[int]bool{0: true}
	for i, ins := range instrs {
		next := ins.Offset + ins.Length
		terminates := instr.Terminates(ins.Opcode)
		conditional := instr.IsConditional(ins.Opcode)
		if (terminates || conditional) && i+1 < len(instrs) {
			leaders[next] = true
		}
		switch ins.Opcode {
		case instr.Goto, instr.GotoW, instr.Jsr, instr.JsrW,
			instr.Ifeq, instr.Ifne, instr.Iflt, instr.Ifge, instr.Ifgt, instr.Ifle,
			instr.IfIcmpeq, instr.IfIcmpne, instr.IfIcmplt, instr.IfIcmpge, instr.IfIcmpgt, instr.IfIcmple,
			instr.IfAcmpeq, instr.IfAcmpne, instr.Ifnull, instr.Ifnonnull:
			if _, ok := byOffset[ins.Target]; !ok {
				return nil, malformed(ins.Offset, "branch target %d is not an instruction boundary", ins.Target)
			}
			leaders[ins.Target] = true
		case instr.Tableswitch, instr.Lookupswitch:
			if _, ok := byOffset[ins.DefaultTarget]; !ok {
				return nil, malformed(ins.Offset, "switch default target %d is not an instruction boundary", ins.DefaultTarget)
			}
			leaders[ins.DefaultTarget] = true
			for _, c := range ins.Cases {
				if _, ok := byOffset[c.Target]; !ok {
					return nil, malformed(ins.Offset, "switch case target %d is not an instruction boundary", c.Target)
				}
				leaders[c.Target] = true
			}
		}
	}
	for i, e := range exceptionTable {
		if _, ok := byOffset[int(e.StartPC)]; !ok {
			return nil, malformed(int(e.StartPC), "exception table entry %d start_pc is not an instruction boundary", i)
		}
		if _, ok := byOffset[int(e.HandlerPC)]; !ok {
			return nil, malformed(int(e.HandlerPC), "exception table entry %d handler_pc is not an instruction boundary", i)
		}
		leaders[int(e.StartPC)] = true
		leaders[int(e.HandlerPC)] = true
		if int(e.EndPC) != codeLen {
			if _, ok := byOffset[int(e.EndPC)]; !ok {
				return nil, malformed(int(e.EndPC), "exception table entry %d end_pc is not an instruction boundary", i)
			}
			leaders[int(e.EndPC)] = true
		}
	}

	var leaderOffsets []int
	for off := range leaders {
		leaderOffsets = append(leaderOffsets, off)
	}
	sort.Ints(leaderOffsets)

	g := &Graph{Blocks: map[int]*Block{}}
	labelAt := make(map[int]int, len(leaderOffsets)) // leader offset -> block label (== offset for real blocks)
	for idx, off := range leaderOffsets {
		end := codeLen
		if idx+1 < len(leaderOffsets) {
			end = leaderOffsets[idx+1]
		}
		blk := &Block{Label: off, Kind: KindNormal, Start: off, End: end}
		for o := off; o < end; {
			ins, ok := byOffset[o]
			if !ok {
				return nil, malformed(o, "instruction stream misaligned with computed block boundaries")
			}
			blk.Instructions = append(blk.Instructions, ins)
			o += ins.Length
		}
		g.Blocks[off] = blk
		labelAt[off] = off
	}

	entry := &Block{Label: entryLabel, Kind: KindEntry}
	g.Blocks[entryLabel] = entry
	g.Entry = entryLabel
	entry.Out = append(entry.Out, &Edge{From: entryLabel, To: leaderOffsets[0], Kind: Fallthrough})

	rethrow := &Block{Label: rethrowLabel, Kind: KindRethrow}
	g.Blocks[rethrowLabel] = rethrow

	returnLabels := map[string]int{}
	nextReturnLabel := rethrowLabel - 1
	returnBlockFor := func(t types.Type) int {
		key := t.String()
		if lbl, ok := returnLabels[key]; ok {
			return lbl
		}
		lbl := nextReturnLabel
		nextReturnLabel--
		returnLabels[key] = lbl
		g.Blocks[lbl] = &Block{Label: lbl, Kind: KindReturn, ReturnType: t}
		return lbl
	}

	nextBlockLabel := func(afterOffset int) (int, bool) {
		for i, off := range leaderOffsets {
			if off == afterOffset && i+1 < len(leaderOffsets) {
				return leaderOffsets[i+1], true
			}
		}
		return 0, false
	}

	for _, off := range leaderOffsets {
		blk := g.Blocks[off]
		last := blk.Instructions[len(blk.Instructions)-1]
		switch {
		case last.Opcode == instr.Goto || last.Opcode == instr.GotoW:
			blk.Out = append(blk.Out, &Edge{From: off, To: last.Target, Kind: Jump, Instr: last})

		case last.Opcode == instr.Jsr || last.Opcode == instr.JsrW:
			blk.Out = append(blk.Out, &Edge{From: off, To: last.Target, Kind: JsrJump, Instr: last})
			if next, ok := nextBlockLabel(off); ok {
				blk.Out = append(blk.Out, &Edge{From: off, To: next, Kind: JsrFallthrough, Instr: last})
			}

		case last.Opcode == instr.Ret:
			blk.Out = append(blk.Out, &Edge{From: off, To: -1, Kind: Ret, Instr: last, RetResolved: false})

		case instr.IsConditional(last.Opcode):
			blk.Out = append(blk.Out, &Edge{From: off, To: last.Target, Kind: Jump, Instr: last})
			next, ok := nextBlockLabel(off)
			if !ok {
				return nil, malformed(last.Offset, "conditional branch is the method's final instruction")
			}
			blk.Out = append(blk.Out, &Edge{From: off, To: next, Kind: Fallthrough})

		case last.Opcode == instr.Tableswitch || last.Opcode == instr.Lookupswitch:
			blk.Out = append(blk.Out, &Edge{From: off, To: last.DefaultTarget, Kind: Switch, Instr: last, SwitchValue: nil})
			for i := range last.Cases {
				v := last.Cases[i].Match
				blk.Out = append(blk.Out, &Edge{From: off, To: last.Cases[i].Target, Kind: Switch, Instr: last, SwitchValue: &v})
			}

		case isReturnOpcode(last.Opcode):
			lbl := returnBlockFor(returnTypeOf(last.Opcode))
			blk.Out = append(blk.Out, &Edge{From: off, To: lbl, Kind: Fallthrough})

		case last.Opcode == instr.Athrow:
			blk.Out = append(blk.Out, &Edge{From: off, To: rethrowLabel, Kind: Fallthrough})

		default:
			next, ok := nextBlockLabel(off)
			if !ok {
				return nil, malformed(last.Offset, "method falls off the end of its code array")
			}
			blk.Out = append(blk.Out, &Edge{From: off, To: next, Kind: Fallthrough})
		}
	}

	for i, e := range exceptionTable {
		throwable := types.Throwable
		if e.CatchType != "" {
			throwable = types.Class(e.CatchType)
		}
		for _, off := range leaderOffsets {
			blk := g.Blocks[off]
			if blk.Start < int(e.EndPC) && blk.End > int(e.StartPC) {
				blk.Out = append(blk.Out, &Edge{
					From: off, To: int(e.HandlerPC), Kind: Exception,
					Priority: i, Throwable: throwable,
				})
			}
		}
	}

	g.order = leaderOffsets

	if err := validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

func isReturnOpcode(op instr.Opcode) bool {
	switch op {
	case instr.Ireturn, instr.Lreturn, instr.Freturn, instr.Dreturn, instr.Areturn, instr.Return:
		return true
	}
	return false
}

func returnTypeOf(op instr.Opcode) types.Type {
	switch op {
	case instr.Ireturn:
		return types.Int
	case instr.Lreturn:
		return types.Long
	case instr.Freturn:
		return types.Float
	case instr.Dreturn:
		return types.Double
	case instr.Areturn:
		return types.Object
	default:
		return types.Void
	}
}

// validate checks the graph invariants spec.md §3 states explicitly.
func validate(g *Graph) error {
	incoming := map[int]int{}
	for _, blk := range g.Blocks {
		for _, e := range blk.Out {
			if e.Kind == Ret && !e.RetResolved {
				// To is only a placeholder until the trace resolves it.
				continue
			}
			incoming[e.To]++
		}
	}
	if incoming[g.Entry] != 0 {
		return malformed(0, "entry block has an incoming edge")
	}

	for _, blk := range g.Blocks {
		if blk.Kind == KindReturn || blk.Kind == KindRethrow {
			for _, e := range blk.Out {
				if e.Kind == Fallthrough {
					return malformed(blk.Start, "a Return/Rethrow block may not have an outgoing Fallthrough edge")
				}
			}
		}
		jumps, falls := 0, 0
		for _, e := range blk.Out {
			if e.Kind == Jump {
				jumps++
			}
			if e.Kind == Fallthrough {
				falls++
			}
		}
		if len(blk.Instructions) > 0 {
			last := blk.Instructions[len(blk.Instructions)-1]
			if instr.IsConditional(last.Opcode) && (jumps != 1 || falls != 1) {
				return malformed(last.Offset, "conditional branch block must have exactly one Jump and one Fallthrough edge")
			}
		}
		prevPriority := -1
		for _, e := range blk.Out {
			if e.Kind != Exception {
				continue
			}
			if e.Priority < prevPriority {
				return malformed(blk.Start, "exception edges out of priority order")
			}
			prevPriority = e.Priority
		}
	}
	return nil
}

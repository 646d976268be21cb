/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package cfg builds the typed control-flow graph a method's decoded
// instructions form (spec.md §3, §4.4), grounded on kirjava
// analysis/graph.py's Block/Edge model: a Block is a maximal
// straight-line instruction run, addressed by an arena-of-blocks keyed
// by its integer label (DESIGN NOTES item 5) rather than by pointer
// identity, so trace results and error Sources can name a block cheaply
// even across goroutine boundaries.
package cfg

import (
	"fmt"

	"github.com/jacobin-vm/classverify/instr"
	"github.com/jacobin-vm/classverify/types"
)

// Kind tags a Block's role in the graph (spec.md §3).
type Kind int

const (
	KindEntry Kind = iota
	KindNormal
	KindReturn
	KindRethrow
)

func (k Kind) String() string {
	switch k {
	case KindEntry:
		return "Entry"
	case KindReturn:
		return "Return"
	case KindRethrow:
		return "Rethrow"
	default:
		return "Normal"
	}
}

// Block is a maximal straight-line run of instructions sharing one entry
// point (spec.md §3 "Block"). Label is the block's address in the
// owning Graph's arena; it is assigned in ascending bytecode-offset
// order by Build, which the trace engine relies on for its
// block-label-ascending work-list determinism (spec.md §4.5, §8 P5).
type Block struct {
	Label int
	Kind  Kind

	// ReturnType is valid only when Kind == KindReturn: the shared return
	// block for every *return instruction of that declared type (spec.md
	// §4.4: "returning instructions → one Fallthrough into the shared
	// Return(type) block").
	ReturnType types.Type

	// Start/End bound the half-open bytecode offset range [Start, End)
	// this block owns. Entry/Return/Rethrow are synthetic and carry no
	// instructions and leave Start and End at zero.
	Start, End int

	Instructions []*instr.Instruction

	Out []*Edge
}

func (b *Block) String() string { return fmt.Sprintf("block %d", b.Label) }

// Graph is the arena of blocks built for one method (spec.md §3).
type Graph struct {
	Blocks map[int]*Block
	Entry  int

	// order holds the instruction-bearing block labels in ascending
	// order, computed once by Build; Ordered returns it directly rather
	// than sorting on every call.
	order []int
}

// Ordered returns the label of every instruction-bearing block in
// ascending order; the synthetic Entry, Return and Rethrow blocks are
// not included. The trace work-list itself keeps its queue sorted by
// label (spec.md §4.5).
func (g *Graph) Ordered() []int { return g.order }

// Block looks up a block by label. Panics if label is not in the graph:
// every caller in this module only ever dereferences labels it obtained
// from Graph itself (an edge's To, Ordered, or Entry), so an absent
// label is a bug in the caller, not a reportable verification failure.
func (g *Graph) Block(label int) *Block {
	b, ok := g.Blocks[label]
	if !ok {
		panic(fmt.Sprintf("cfg: no block with label %d", label))
	}
	return b
}

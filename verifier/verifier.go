/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package verifier implements the top-level orchestrator (spec.md §4.7):
// decode a method's Code attribute into a CFG, trace it to a fixpoint,
// and on success regenerate its StackMapTable from the join-point
// frames the trace produced; on failure report every accumulated error
// as one VerifyError. Grounded on jacobin classloader.go's top-level
// per-method driving loop, generalized from "parse StackMapTable" to
// "parse, trace, and re-emit StackMapTable."
package verifier

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/jacobin-vm/classverify/cfg"
	"github.com/jacobin-vm/classverify/classfile"
	"github.com/jacobin-vm/classverify/cpool"
	"github.com/jacobin-vm/classverify/frame"
	"github.com/jacobin-vm/classverify/instr"
	"github.com/jacobin-vm/classverify/internal/vlog"
	"github.com/jacobin-vm/classverify/interp"
	"github.com/jacobin-vm/classverify/stackmap"
	"github.com/jacobin-vm/classverify/types"
	"github.com/jacobin-vm/classverify/verifyerr"
)

// Verify checks one method of the class named className against pool,
// the class's own constant pool (mutated in place by Add/AddClass calls
// made while resolving operands and, on success, while re-encoding the
// StackMapTable). Methods with no Code attribute — abstract or native —
// trivially verify, matching the JVM spec's own scope for the
// structural constraints this library enforces (spec.md §2 Non-goals:
// "abstract/native methods carry no Code attribute to verify").
//
// On success, method.Code's StackMapTable attribute is replaced with one
// regenerated from the trace's merged join-point frames. On failure, the
// returned error is a *verifyerr.VerifyError wrapped with a stack trace
// (github.com/pkg/errors), never modifying method.Code.
func Verify(pool *cpool.ConstantPool, className string, method *classfile.Method, opts Config) error {
	if !method.HasCode() {
		return nil
	}
	code := method.Code

	run := vlog.NewRun(className + "." + method.Name + method.Descriptor)
	run.Trace("verification started")

	instrs, err := instr.Decode(pool, code.Code)
	if err != nil {
		run.Error("decode failed: " + err.Error())
		return err
	}
	if opts.MaxInstructions > 0 && len(instrs) > opts.MaxInstructions {
		err := verifyerr.Fatal(nil, verifyerr.MalformedCode, verifyerr.BlockLabel(0),
			"method body has", len(instrs), "instructions, exceeding the configured bound of", opts.MaxInstructions)
		run.Error(err.Error())
		return err
	}

	graph, err := cfg.Build(instrs, code.ExceptionTable)
	if err != nil {
		run.Error("cfg build failed: " + err.Error())
		return err
	}

	initial, err := entryFrame(pool, className, method, int(code.MaxLocals))
	if err != nil {
		run.Error("entry frame failed: " + err.Error())
		return err
	}

	result, err := interp.Run(pool, graph, initial, opts.TypeChecker)
	if err != nil {
		run.Error("trace failed: " + err.Error())
		return err
	}
	if len(result.Errors) > 0 {
		ve := verifyerr.NewVerifyError(result.Errors)
		run.Log(fmt.Sprintf("verification failed with %d error(s)", len(ve.Errors)), vlog.WARNING)
		return errors.WithStack(ve)
	}

	frames := joinPointFrames(graph, result)
	encoded, err := stackmap.Encode(pool, localsToLogical(initial.Locals), frames)
	if err != nil {
		run.Error("stack map encode failed: " + err.Error())
		return err
	}
	code.SetStackMapTable(encoded)
	run.Trace("verification succeeded, run " + run.ID())
	return nil
}

// entryFrame builds the method-entry abstract frame (JVM spec §4.10.1.6
// "Method Invocation"): this (uninitializedThis inside a constructor
// body, by JVM spec §4.10.1.6's own carve-out, else the declaring
// class) occupies local 0 unless the method is static, followed by the
// descriptor's argument types in order, each consuming one local slot
// per category (double/long reserve a second, unaddressable Top slot).
func entryFrame(pool *cpool.ConstantPool, className string, method *classfile.Method, maxLocals int) (*frame.Frame, error) {
	argTypes, _, err := cpool.ParseMethodDescriptor(method.Descriptor, cpool.ParseOptions{})
	if err != nil {
		return nil, err
	}

	f := frame.New(maxLocals)
	idx := 0
	if !method.Flags.IsStatic() {
		this := types.Class(className)
		if method.Name == "<init>" {
			this = types.UninitializedThis
		}
		if err := f.SetLocal(idx, this); err != nil {
			return nil, errors.WithStack(verifyerr.NewVerifyError([]verifyerr.Error{err.(verifyerr.Error)}))
		}
		idx++
	}
	for _, t := range argTypes {
		if idx >= maxLocals {
			return nil, verifyerr.Fatal(nil, verifyerr.MalformedCode, verifyerr.BlockLabel(0),
				"method descriptor's argument locals exceed max_locals")
		}
		if err := f.SetLocal(idx, t); err != nil {
			return nil, errors.WithStack(verifyerr.NewVerifyError([]verifyerr.Error{err.(verifyerr.Error)}))
		}
		idx += t.Category()
	}
	return f, nil
}

// joinPointFrames selects every block with at least two incoming edges
// of any kind — spec.md §4.7: "regenerate StackMapTable from merged
// frames at every block with ≥2 incoming flow edges." A handler entered
// by one try region plus a fallthrough predecessor is exactly as much a
// join point as two ordinary branches merging, so Exception edges count
// here the same as Fallthrough/Jump/Switch/Ret.
func joinPointFrames(g *cfg.Graph, result *interp.Result) []stackmap.ExplicitFrame {
	incoming := map[int]int{}
	for _, label := range g.Ordered() {
		for _, e := range g.Block(label).Out {
			incoming[e.To]++
		}
	}

	var labels []int
	for label, n := range incoming {
		if n >= 2 {
			if _, ok := result.PreFrames[label]; ok {
				labels = append(labels, label)
			}
		}
	}
	sort.Ints(labels)

	frames := make([]stackmap.ExplicitFrame, 0, len(labels))
	for _, label := range labels {
		fr := result.PreFrames[label]
		frames = append(frames, stackmap.ExplicitFrame{
			Offset: label,
			Locals: localsToLogical(fr.Locals),
			Stack:  stackToLogical(fr.Stack),
		})
	}
	return frames
}

// localsToLogical collapses a Frame's physically slot-indexed locals
// (one reserved, unaddressable types.Top entry after every category-2
// value) into the StackMapTable's logical one-entry-per-value encoding
// (JVM spec §4.7.4: a long/double local contributes exactly one
// verification_type_info, never two).
func localsToLogical(locals []frame.Value) []types.Type {
	out := make([]types.Type, 0, len(locals))
	for i := 0; i < len(locals); i++ {
		t := locals[i].Type
		out = append(out, t)
		if t.Category() == 2 {
			i++
		}
	}
	return out
}

// stackToLogical converts operand-stack slots to their types; the stack
// is already one logical entry per value (frame.Frame's own doc
// comment), so no collapsing is needed.
func stackToLogical(stack []frame.Value) []types.Type {
	out := make([]types.Type, len(stack))
	for i, v := range stack {
		out[i] = v.Type
	}
	return out
}

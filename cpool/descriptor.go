/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package cpool

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/jacobin-vm/classverify/types"
	"github.com/jacobin-vm/classverify/verifyerr"
)

// ParseOptions controls the descriptor parser's strictness (spec.md
// §4.2).
type ParseOptions struct {
	// ForceRead recovers as much of a malformed descriptor as possible
	// before giving up on the remainder, rather than stopping at the
	// first deviation.
	ForceRead bool
	// DontThrow, combined with ForceRead=false, recovers garbage
	// descriptors into an opaque placeholder rather than failing.
	DontThrow bool
}

// placeholderType is the opaque recovery type: an unresolvable
// verification-type shaped array-less class named "<malformed>", matching spec.md
// §4.2's "opaque placeholder type" for best-effort recovery.
var placeholderType = types.Class("<malformed>")

type descReader struct {
	s   string
	pos int
}

func (r *descReader) peek() (byte, bool) {
	if r.pos >= len(r.s) {
		return 0, false
	}
	return r.s[r.pos], true
}

func (r *descReader) next() (byte, bool) {
	c, ok := r.peek()
	if ok {
		r.pos++
	}
	return c, ok
}

// ParseFieldDescriptor converts a field descriptor string ("I",
// "Ljava/lang/String;", "[[D", ...) into its verification type.
func ParseFieldDescriptor(desc string, opts ParseOptions) (types.Type, error) {
	r := &descReader{s: desc}
	t, ok := parseType(r, false)
	if !ok || r.pos != len(desc) {
		if opts.DontThrow {
			return placeholderType, nil
		}
		return types.Type{}, fail(desc)
	}
	return t, nil
}

// ParseMethodDescriptor converts "(...)R" into (argument types, return
// type). When the parse fails and opts.DontThrow is set, it always
// returns the (args, return) shape — never a bare non-tuple value — per
// SPEC_FULL.md's resolution of the "method_info descriptor-error
// fallback" open question: a placeholder `top` return type is used when
// unrecoverable.
func ParseMethodDescriptor(desc string, opts ParseOptions) ([]types.Type, types.Type, error) {
	r := &descReader{s: desc}
	c, ok := r.next()
	if !ok || c != '(' {
		if opts.DontThrow {
			return nil, types.Top, nil
		}
		return nil, types.Type{}, fail(desc)
	}

	var args []types.Type
	for {
		c, ok := r.peek()
		if !ok {
			if opts.DontThrow {
				return args, types.Top, nil
			}
			return nil, types.Type{}, fail(desc)
		}
		if c == ')' {
			r.next()
			break
		}
		t, ok := parseType(r, false)
		if !ok {
			if opts.ForceRead {
				// best-effort: skip the offending byte and keep going
				r.next()
				continue
			}
			if opts.DontThrow {
				return args, types.Top, nil
			}
			return nil, types.Type{}, fail(desc)
		}
		args = append(args, t)
	}

	ret, ok := parseType(r, true)
	if !ok || r.pos != len(desc) {
		if opts.DontThrow {
			return args, types.Top, nil
		}
		return nil, types.Type{}, fail(desc)
	}
	return args, ret, nil
}

// parseType reads one field-descriptor-shaped type, recursing through
// leading '[' array markers. allowVoid permits the bare 'V' return-only
// marker (spec.md §4.2: "Enforce void only as a return type").
func parseType(r *descReader, allowVoid bool) (types.Type, bool) {
	c, ok := r.next()
	if !ok {
		return types.Type{}, false
	}
	switch c {
	case 'B':
		return types.Byte, true
	case 'C':
		return types.Char, true
	case 'D':
		return types.Double, true
	case 'F':
		return types.Float, true
	case 'I':
		return types.Int, true
	case 'J':
		return types.Long, true
	case 'S':
		return types.Short, true
	case 'Z':
		return types.Bool, true
	case 'V':
		if allowVoid {
			return types.Void, true
		}
		return types.Type{}, false
	case 'L':
		start := r.pos
		for {
			b, ok := r.next()
			if !ok {
				return types.Type{}, false
			}
			if b == ';' {
				return types.Class(r.s[start : r.pos-1]), true
			}
		}
	case '[':
		elem, ok := parseType(r, false)
		if !ok {
			return types.Type{}, false
		}
		if elem.IsArray() {
			return types.Array(elem.Element(), elem.Dimension()+1), true
		}
		return types.Array(elem, 1), true
	default:
		return types.Type{}, false
	}
}

func fail(desc string) error {
	return errors.WithStack(verifyerr.NewVerifyError([]verifyerr.Error{
		verifyerr.New(verifyerr.MalformedDescriptor, nil, "malformed descriptor:", desc),
	}))
}

// ToFieldDescriptor renders a type back to its field-descriptor string
// (spec.md §8 P2: descriptor round-trip).
func ToFieldDescriptor(t types.Type) string {
	switch t.Kind() {
	case types.KindByte:
		return "B"
	case types.KindChar:
		return "C"
	case types.KindDouble:
		return "D"
	case types.KindFloat:
		return "F"
	case types.KindInt:
		return "I"
	case types.KindLong:
		return "J"
	case types.KindShort:
		return "S"
	case types.KindBool:
		return "Z"
	case types.KindClass:
		return "L" + t.ClassName() + ";"
	case types.KindArray:
		return "[" + ToFieldDescriptor(t.Element())
	default:
		return "Ljava/lang/Object;"
	}
}

// ToMethodDescriptor renders (args, ret) back to "(...)R".
func ToMethodDescriptor(args []types.Type, ret types.Type) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, a := range args {
		b.WriteString(ToFieldDescriptor(a))
	}
	b.WriteByte(')')
	if ret.Kind() == types.KindVoid {
		b.WriteByte('V')
	} else {
		b.WriteString(ToFieldDescriptor(ret))
	}
	return b.String()
}

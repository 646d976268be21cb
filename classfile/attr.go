/*
 * classverify - a JVM class-file bytecode verification library
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package classfile models the narrow slice of the class file format the
// verifier actually consumes and produces: a method's Code attribute and
// the binary shapes nested inside it. Everything else — the overall class
// reader/writer, field tables, non-code attributes — is an external
// collaborator's job, per spec.md's scope note.
package classfile

// Attribute is one entry of an attributes table. Attributes the verifier
// does not model structurally (everything but Code; StackMapTable is
// decoded separately by the stackmap package from a Code attribute's raw
// bytes) pass through as RawAttribute, matching jacobin's own `attr`
// struct in classloader.go ("content is just the raw bytes").
type Attribute interface {
	AttrName() string
}

// RawAttribute is an attribute this package does not interpret.
type RawAttribute struct {
	Name string
	Data []byte
}

func (a RawAttribute) AttrName() string { return a.Name }

// AttributeList is an ordered attributes table with by-name lookup.
type AttributeList []Attribute

// Find returns the first attribute named name, if any.
func (l AttributeList) Find(name string) (Attribute, bool) {
	for _, a := range l {
		if a.AttrName() == name {
			return a, true
		}
	}
	return nil, false
}

// Raw returns the raw bytes of the first attribute named name, if it is
// (or has been left as) a RawAttribute.
func (l AttributeList) Raw(name string) ([]byte, bool) {
	a, ok := l.Find(name)
	if !ok {
		return nil, false
	}
	if r, ok := a.(RawAttribute); ok {
		return r.Data, true
	}
	return nil, false
}

// Package fingerprint computes a structural identifier for a topic's
// payload type, independent of any host-language type name, per spec §6
// ("type fingerprint"). Two processes built from different source trees but
// agreeing on the same field layout produce the same fingerprint; a field
// added, removed, renamed, or retyped changes it.
//
// The description is encoded as a Cap'n Proto message (grounded on the
// teacher's use of zombiezen.com/go/capnproto2 for its own wire structs,
// e.g. kernel/core/mesh/common/types.go's ToCapnp/FromCapnp pair) and then
// reduced to 64 bits with FNV-1a, the hash spec §6 names explicitly.
package fingerprint

import (
	"hash/fnv"
	"sort"
	"strings"

	capnp "zombiezen.com/go/capnproto2"

	"github.com/horus-robotics/horus/internal/horuserr"
)

// WireType enumerates the primitive and composite kinds a payload field can
// have for fingerprinting purposes (spec §5 "Payload Schema").
type WireType string

const (
	Bool    WireType = "bool"
	Int32   WireType = "int32"
	Int64   WireType = "int64"
	Uint32  WireType = "uint32"
	Uint64  WireType = "uint64"
	Float32 WireType = "float32"
	Float64 WireType = "float64"
	Text    WireType = "text"
	Bytes   WireType = "bytes"
)

// Field describes one field of a payload struct.
type Field struct {
	Name     string
	Type     WireType
	Repeated bool
}

// Schema is the full structural description of a payload type: its
// declared name plus its fields. Field order as given does not affect the
// resulting fingerprint — only the declared Name and the set of (name,
// type, repeated) triples do, so reordering fields in a struct definition
// is not a breaking change but renaming, retyping, adding, or removing one
// is, and so is changing the schema's Name.
type Schema struct {
	Name   string
	Fields []Field
}

// Compute encodes s canonically via Cap'n Proto and reduces it to a 64-bit
// fingerprint with FNV-1a.
func Compute(s Schema) (uint64, error) {
	fields := make([]Field, len(s.Fields))
	copy(fields, s.Fields)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	tokens := make([]string, 0, len(fields)+1)
	tokens = append(tokens, "struct:"+s.Name)
	for _, f := range fields {
		tokens = append(tokens, fieldToken(f))
	}

	encoded, err := encodeTokens(tokens)
	if err != nil {
		return 0, horuserr.Wrapf(horuserr.ErrInternal, "encode schema %s: %v", s.Name, err)
	}

	h := fnv.New64a()
	_, _ = h.Write(encoded)
	return h.Sum64(), nil
}

// MustCompute is Compute for package-init-time fingerprint tables, where a
// malformed schema is a programmer error worth panicking on immediately.
func MustCompute(s Schema) uint64 {
	fp, err := Compute(s)
	if err != nil {
		panic(err)
	}
	return fp
}

func fieldToken(f Field) string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteByte(':')
	b.WriteString(string(f.Type))
	if f.Repeated {
		b.WriteString("[]")
	}
	return b.String()
}

// encodeTokens builds a single-segment Cap'n Proto message containing a
// text list of the schema's canonical tokens and returns its marshaled
// bytes. Using Cap'n Proto's own segment/list encoding (rather than, say,
// joining the tokens with a stdlib string builder) keeps the wire
// representation stable across the same field set regardless of which
// process or platform computed it, matching how the rest of the pack
// exchanges structured data on the wire.
func encodeTokens(tokens []string) ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, err
	}

	root, err := capnp.NewRootStruct(seg, capnp.ObjectSize{PointerCount: 1})
	if err != nil {
		return nil, err
	}

	list, err := capnp.NewTextList(seg, int32(len(tokens)))
	if err != nil {
		return nil, err
	}
	for i, tok := range tokens {
		if err := list.Set(i, tok); err != nil {
			return nil, err
		}
	}
	if err := root.SetPtr(0, list.ToPtr()); err != nil {
		return nil, err
	}

	return msg.Marshal()
}

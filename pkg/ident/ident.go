// Package ident defines the process-unique compilation-unit identifier
// shared by every layer of the core (chunk storage, syntax tree, semantic
// database): Id. It is deliberately dependency-light so that every other
// package can embed an Id in its handle types without risking an import
// cycle.
package ident

import "github.com/google/uuid"

// Id is a process-unique identifier, typically minted once per Document
// and embedded in every handle (TokenRef, NodeRef, ErrorRef, AttrRef,
// SlotRef) that document produces. The zero Id is the Nil sentinel.
type Id struct {
	hi, lo uint64
}

// Nil is the sentinel Id equal to the zero value.
var Nil Id

// New mints a fresh, effectively-process-unique Id backed by a random
// UUIDv4, adopted from the retrieval pack's evalgo-org-eve module (which
// mints request/resource IDs with google/uuid the same way) since the
// teacher repository itself never needed a process-unique identifier type.
func New() Id {
	u := uuid.New()

	return Id{
		hi: beUint64(u[0:8]),
		lo: beUint64(u[8:16]),
	}
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}

	return v
}

// IsNil reports whether id is the Nil sentinel.
func (id Id) IsNil() bool { return id == Nil }

// String renders id as a hex pair, or "nil".
func (id Id) String() string {
	if id.IsNil() {
		return "nil"
	}

	const hextable = "0123456789abcdef"

	buf := make([]byte, 32)
	writeHex(buf[0:16], id.hi)
	writeHex(buf[16:32], id.lo)

	return string(buf)
}

func writeHex(dst []byte, v uint64) {
	const hextable = "0123456789abcdef"
	for i := 15; i >= 0; i-- {
		dst[i] = hextable[v&0xf]
		v >>= 4
	}
}

// Package proofblob implements the self-describing, typed-section proof
// wire format: a flat sequence of {type:u8, length:u32, payload:bytes}
// sections. The composer (pkg/prover) writes blobs; the verifier
// (pkg/verifier) parses them.
package proofblob

import (
	"encoding/binary"
	"fmt"
)

// SectionType tags the payload that follows it in the blob.
type SectionType uint8

const (
	Header SectionType = iota + 1
	BeaconHeader
	SyncSignature
	SSZBranch
	PatriciaWitness
	Answer
	ZkSubProof
)

func (t SectionType) String() string {
	switch t {
	case Header:
		return "HEADER"
	case BeaconHeader:
		return "BEACON_HEADER"
	case SyncSignature:
		return "SYNC_SIGNATURE"
	case SSZBranch:
		return "SSZ_BRANCH"
	case PatriciaWitness:
		return "PATRICIA_WITNESS"
	case Answer:
		return "ANSWER"
	case ZkSubProof:
		return "ZK_SUBPROOF"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

func knownType(t SectionType) bool {
	return t >= Header && t <= ZkSubProof
}

// Section is one typed chunk of a proof blob.
type Section struct {
	Type    SectionType
	Payload []byte
}

// ErrUnknownSectionType is returned when a section's type byte is outside
// the known set; such blobs must be rejected, never skipped, since a
// future section type could silently change semantics.
var ErrUnknownSectionType = fmt.Errorf("proofblob: unknown section type")

// ErrTruncated signals a section header or payload ran past the end of
// the buffer.
var ErrTruncated = fmt.Errorf("proofblob: truncated blob")

// Encode concatenates sections in order, each framed as
// {type:u8, length:u32 big-endian, payload}.
func Encode(sections []Section) ([]byte, error) {
	var out []byte
	for _, s := range sections {
		if !knownType(s.Type) {
			return nil, ErrUnknownSectionType
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s.Payload)))
		out = append(out, byte(s.Type))
		out = append(out, lenBuf[:]...)
		out = append(out, s.Payload...)
	}
	return out, nil
}

// Decode splits a blob back into its ordered sections, rejecting any
// unknown section type or truncated framing outright.
func Decode(blob []byte) ([]Section, error) {
	var sections []Section
	for len(blob) > 0 {
		if len(blob) < 5 {
			return nil, ErrTruncated
		}
		t := SectionType(blob[0])
		if !knownType(t) {
			return nil, ErrUnknownSectionType
		}
		length := binary.BigEndian.Uint32(blob[1:5])
		blob = blob[5:]
		if uint64(len(blob)) < uint64(length) {
			return nil, ErrTruncated
		}
		sections = append(sections, Section{Type: t, Payload: blob[:length]})
		blob = blob[length:]
	}
	return sections, nil
}

// Find returns the first section of the given type, or nil if absent.
func Find(sections []Section, t SectionType) *Section {
	for i := range sections {
		if sections[i].Type == t {
			return &sections[i]
		}
	}
	return nil
}

// FindAll returns every section matching the given type, in blob order.
func FindAll(sections []Section, t SectionType) []Section {
	var out []Section
	for _, s := range sections {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

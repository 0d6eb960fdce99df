package proofblob

import "encoding/binary"

// ForkTag identifies the consensus fork schedule in force at the
// attested header's slot, which selects the generalized index the
// SSZ_BRANCH section must be checked against.
type ForkTag uint8

const (
	ForkUnknown ForkTag = iota
	ForkBellatrix
	ForkCapella
	ForkDeneb
	ForkElectra
)

// HeaderPayload is the decoded form of a HEADER section: chain id,
// method id, and fork tag.
type HeaderPayload struct {
	ChainID  uint64
	MethodID uint32
	Fork     ForkTag
}

// EncodeHeaderPayload renders a HeaderPayload as the 13-byte fixed
// layout: chain id (u64 BE), method id (u32 BE), fork tag (u8).
func EncodeHeaderPayload(h HeaderPayload) []byte {
	buf := make([]byte, 13)
	binary.BigEndian.PutUint64(buf[0:8], h.ChainID)
	binary.BigEndian.PutUint32(buf[8:12], h.MethodID)
	buf[12] = byte(h.Fork)
	return buf
}

// DecodeHeaderPayload is the inverse of EncodeHeaderPayload.
func DecodeHeaderPayload(payload []byte) (HeaderPayload, error) {
	if len(payload) != 13 {
		return HeaderPayload{}, ErrTruncated
	}
	return HeaderPayload{
		ChainID:  binary.BigEndian.Uint64(payload[0:8]),
		MethodID: binary.BigEndian.Uint32(payload[8:12]),
		Fork:     ForkTag(payload[12]),
	}, nil
}

package zkregistry

import "errors"

// ErrMalformedProof is returned when a serialized Proof cannot be parsed
// back out of its wire form.
var ErrMalformedProof = errors.New("zkregistry: malformed proof bytes")

// ProofWireLen is a Groth16 proof's flat encoding: A (G1, 32 bytes
// compressed) + B (G2, 64 bytes compressed) + C (G1, 32 bytes compressed).
const ProofWireLen = 32 + 64 + 32

// EncodeProof renders a Proof as its flat compressed wire form, used for
// the ZK_SUBPROOF proof blob section.
func EncodeProof(p Proof) []byte {
	buf := make([]byte, 0, ProofWireLen)
	aBytes := p.A.Bytes()
	bBytes := p.B.Bytes()
	cBytes := p.C.Bytes()
	buf = append(buf, aBytes[:]...)
	buf = append(buf, bBytes[:]...)
	buf = append(buf, cBytes[:]...)
	return buf
}

// DecodeProof is the inverse of EncodeProof.
func DecodeProof(b []byte) (*Proof, error) {
	if len(b) != ProofWireLen {
		return nil, ErrMalformedProof
	}
	var p Proof
	var aBuf [32]byte
	var bBuf [64]byte
	var cBuf [32]byte
	copy(aBuf[:], b[0:32])
	copy(bBuf[:], b[32:96])
	copy(cBuf[:], b[96:128])
	if _, err := p.A.SetBytes(aBuf[:]); err != nil {
		return nil, ErrMalformedProof
	}
	if _, err := p.B.SetBytes(bBuf[:]); err != nil {
		return nil, ErrMalformedProof
	}
	if _, err := p.C.SetBytes(cBuf[:]); err != nil {
		return nil, ErrMalformedProof
	}
	return &p, nil
}

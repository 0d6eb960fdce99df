package preconf

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// sigLen is the length of a [R || S || V] recoverable secp256k1
// signature appended to a raw payload.
const sigLen = 65

var (
	ErrPayloadTooShort = errors.New("preconf: payload shorter than its signature")
	ErrWrongSequencer  = errors.New("preconf: payload signed by unexpected sequencer")
)

// payloadDigest = keccak256("preconf-payload-v1" || chain_id_le || body)
func payloadDigest(chainID uint64, body []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("preconf-payload-v1"))
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(chainID >> (8 * i))
	}
	h.Write(buf[:])
	h.Write(body)
	var digest [32]byte
	h.Sum(digest[:0])
	return digest
}

// SequencerVerifier returns a Verifier that recovers the secp256k1
// signer of a payload's trailing 65-byte signature and requires it to
// be the configured sequencer address. The signed message is the
// keccak digest of the domain-prefixed payload body.
func SequencerVerifier(sequencer common.Address) Verifier {
	return func(p *Payload) error {
		if p == nil {
			return ErrPayloadNil
		}
		if len(p.Raw) < sigLen {
			return ErrPayloadTooShort
		}
		body := p.Raw[:len(p.Raw)-sigLen]
		sig := p.Raw[len(p.Raw)-sigLen:]

		digest := payloadDigest(p.ChainID, body)
		pub, err := crypto.SigToPub(digest[:], sig)
		if err != nil {
			return ErrVerifyFailed
		}
		if crypto.PubkeyToAddress(*pub) != sequencer {
			return ErrWrongSequencer
		}
		return nil
	}
}

// SignPayload appends the sequencer's signature over body to produce
// the wire form SequencerVerifier accepts. Used by sequencer-side
// tooling and tests.
func SignPayload(chainID uint64, body []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	digest := payloadDigest(chainID, body)
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, body...), sig...), nil
}

// Package bls wraps supranational/blst's MinPk scheme (48-byte
// compressed G1 pubkeys, 96-byte compressed G2 signatures) for the
// sync-committee aggregate signature check.
// DOMAIN_SYNC_COMMITTEE requires the 0x07000000 domain prefix be folded
// into the signing root before it reaches this package; the package
// itself only performs the pairing check.
package bls

import (
	"errors"

	blst "github.com/supranational/blst/bindings/go"
)

// SyncCommitteeDST is the hash-to-curve domain separation tag Ethereum
// uses for all BLS12-381 signatures, including sync-committee
// signatures, under the MinPk scheme.
var SyncCommitteeDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

const (
	PubkeySize    = 48 // compressed G1
	SignatureSize = 96 // compressed G2
)

var (
	ErrInvalidPubkey    = errors.New("bls: invalid compressed pubkey")
	ErrInvalidSignature = errors.New("bls: invalid compressed signature")
	ErrNoParticipants   = errors.New("bls: no participating pubkeys")
)

// FastAggregateVerify checks a signature aggregated by many signers over
// a single shared message — the sync-committee case, where every
// participating member signs the same signing root.
func FastAggregateVerify(pubkeys [][]byte, msg []byte, sig []byte) (bool, error) {
	if len(pubkeys) == 0 {
		return false, ErrNoParticipants
	}
	if len(sig) != SignatureSize {
		return false, ErrInvalidSignature
	}

	s := new(blst.P2Affine).Uncompress(sig)
	if s == nil {
		return false, ErrInvalidSignature
	}

	pks := make([]*blst.P1Affine, len(pubkeys))
	for i, pkBytes := range pubkeys {
		if len(pkBytes) != PubkeySize {
			return false, ErrInvalidPubkey
		}
		pks[i] = new(blst.P1Affine).Uncompress(pkBytes)
		if pks[i] == nil {
			return false, ErrInvalidPubkey
		}
	}

	return s.FastAggregateVerify(true, pks, msg, SyncCommitteeDST), nil
}

// AggregatePublicKeys combines a set of compressed pubkeys into their
// compressed aggregate. The sync engine does not call it; it checks
// committees through the SSZ list root.
func AggregatePublicKeys(pubkeys [][]byte) ([]byte, error) {
	if len(pubkeys) == 0 {
		return nil, ErrNoParticipants
	}
	agg := new(blst.P1Aggregate)
	pks := make([]*blst.P1Affine, len(pubkeys))
	for i, pkBytes := range pubkeys {
		if len(pkBytes) != PubkeySize {
			return nil, ErrInvalidPubkey
		}
		pks[i] = new(blst.P1Affine).Uncompress(pkBytes)
		if pks[i] == nil {
			return nil, ErrInvalidPubkey
		}
	}
	agg.Aggregate(pks, false)
	return agg.ToAffine().Compress(), nil
}

// CountSetBits returns the number of set bits in a little-endian
// participation bitfield, used to enforce the >= 2/3 supermajority
// requirement.
func CountSetBits(bitfield []byte) int {
	count := 0
	for _, b := range bitfield {
		for b != 0 {
			count += int(b & 1)
			b >>= 1
		}
	}
	return count
}

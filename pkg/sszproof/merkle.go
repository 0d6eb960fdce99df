// Package sszproof computes SSZ hash-tree-roots for the structured
// beacon objects the light client needs and verifies generalized-index
// Merkle branches against an attested state root.
package sszproof

import (
	"crypto/sha256"
	"errors"

	ssz "github.com/ferranbt/fastssz"
)

// Branch depths the fork schedule actually produces.
const (
	DenebBranchDepth   = 10
	ElectraBranchDepth = 11
)

var (
	ErrWrongPubkeyCount   = errors.New("sszproof: sync committee must have 512 pubkeys")
	ErrWrongPubkeySize    = errors.New("sszproof: pubkey must be 48 bytes")
	ErrUnknownBranchDepth = errors.New("sszproof: branch length is neither Deneb (10) nor Electra (11)")
)

const SyncCommitteeSize = 512

// CommitteeRoot computes the SSZ hash-tree-root of a Vector[BLSPubkey, 512]
// using fastssz's hasher, the same merkleization the beacon chain's own
// generated state codecs use.
func CommitteeRoot(pubkeys [][]byte) ([32]byte, error) {
	if len(pubkeys) != SyncCommitteeSize {
		return [32]byte{}, ErrWrongPubkeyCount
	}
	hh := ssz.NewHasher()
	indx := hh.Index()
	for _, pk := range pubkeys {
		if len(pk) != 48 {
			return [32]byte{}, ErrWrongPubkeySize
		}
		hh.PutBytes(pk)
	}
	hh.Merkleize(indx)
	return hh.HashRoot()
}

// GeneralizedIndex selects the generalized index of next_sync_committee
// within BeaconState by the length of the supplied branch: 55 before
// Electra, 87 at and after.
func GeneralizedIndex(branchLen int) (uint64, error) {
	switch branchLen {
	case DenebBranchDepth:
		return 55, nil
	case ElectraBranchDepth:
		return 87, nil
	default:
		return 0, ErrUnknownBranchDepth
	}
}

// VerifyGeneralizedIndexBranch walks a Merkle branch from leaf to root
// using the bit pattern of the generalized index to pick, at each level,
// whether the accumulated hash is the left or right child — the
// standard SSZ branch-verification algorithm.
func VerifyGeneralizedIndexBranch(root [32]byte, leaf [32]byte, branch [][32]byte, generalizedIndex uint64) bool {
	current := leaf
	idx := generalizedIndex
	for _, sibling := range branch {
		if idx&1 == 1 {
			current = hashPair(sibling, current)
		} else {
			current = hashPair(current, sibling)
		}
		idx >>= 1
	}
	return current == root
}

func hashPair(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

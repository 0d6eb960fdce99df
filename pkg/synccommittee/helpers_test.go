package synccommittee_test

import (
	"crypto/sha256"

	"github.com/corpus-core/colibri-stateless/pkg/synccommittee"
)

// These mirror the unexported hashing helpers in engine.go exactly, so
// tests in this external test package can construct headers/branches
// whose roots match what the engine will independently recompute.

func hashPairForTest(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func putUint64LEForTest(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> (8 * uint(i)))
	}
}

func headerRootForTest(h synccommittee.Header) [32]byte {
	var slotLeaf, proposerLeaf [32]byte
	putUint64LEForTest(slotLeaf[:], h.Slot)
	putUint64LEForTest(proposerLeaf[:], h.ProposerIndex)

	left := hashPairForTest(slotLeaf, proposerLeaf)
	right := hashPairForTest(h.ParentRoot, h.StateRoot)
	leftRight := hashPairForTest(left, right)
	return hashPairForTest(leftRight, hashPairForTest(h.BodyRoot, [32]byte{}))
}

func signingRootForTest(h synccommittee.Header, domain [4]byte) [32]byte {
	var domainLeaf [32]byte
	copy(domainLeaf[:], domain[:])
	return hashPairForTest(headerRootForTest(h), domainLeaf)
}

func rootFromBranch(leaf [32]byte, branch [][32]byte, generalizedIndex uint64) [32]byte {
	current := leaf
	idx := generalizedIndex
	for _, sibling := range branch {
		if idx&1 == 1 {
			current = hashPairForTest(sibling, current)
		} else {
			current = hashPairForTest(current, sibling)
		}
		idx >>= 1
	}
	return current
}

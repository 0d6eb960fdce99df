// Package zkregistry holds the process-wide set of registered zk
// verifying keys and checks the BN254 Groth16-style sub-proofs used for
// light-client long jumps. The sub-proof's public output commits to
// (current_keys_root, next_keys_root, next_period, attested_header_root,
// domain); this package verifies the pairing equation and leaves
// interpreting that commitment to the sync engine.
package zkregistry

import (
	"errors"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

var (
	ErrNilVerifyingKey  = errors.New("zkregistry: nil verifying key")
	ErrICMismatch       = errors.New("zkregistry: IC length does not match public input count")
	ErrPairingFailed    = errors.New("zkregistry: BN254 pairing check failed")
	ErrVKNotRegistered  = errors.New("zkregistry: verifying key not pre-registered for chain")
)

// VerifyingKey is a Groth16 verifying key over BN254, the curve the zk
// sub-proof's recursive verifier uses.
type VerifyingKey struct {
	Alpha bn254.G1Affine
	Beta  bn254.G2Affine
	Gamma bn254.G2Affine
	Delta bn254.G2Affine
	IC    []bn254.G1Affine // IC[0] is the constant term
}

// Proof is a Groth16 proof: A, C in G1, B in G2.
type Proof struct {
	A bn254.G1Affine
	B bn254.G2Affine
	C bn254.G1Affine
}

// registry is the single process-wide verifying-key set. Registration
// has init-once semantics: re-registering a chain id replaces its key
// atomically rather than erroring.
var (
	mu   sync.RWMutex
	keys = make(map[uint64]*VerifyingKey)
)

// Register installs (or atomically replaces) the verifying key for a
// chain id.
func Register(chainID uint64, vk *VerifyingKey) {
	mu.Lock()
	defer mu.Unlock()
	keys[chainID] = vk
}

// Lookup returns the registered verifying key for a chain id, if any.
func Lookup(chainID uint64) (*VerifyingKey, bool) {
	mu.RLock()
	defer mu.RUnlock()
	vk, ok := keys[chainID]
	return vk, ok
}

// VerifyForChain looks up the chain's registered key and verifies the
// sub-proof against it. A verifier must refuse sub-proofs whose
// verifying key is not pre-registered.
func VerifyForChain(chainID uint64, proof *Proof, publicInputs []fr.Element) error {
	vk, ok := Lookup(chainID)
	if !ok {
		return ErrVKNotRegistered
	}
	return Verify(vk, proof, publicInputs)
}

// Verify checks the Groth16 pairing equation:
//
//	e(A, B) = e(Alpha, Beta) * e(sum_i(IC[i] * input[i]), Gamma) * e(C, Delta)
//
// using gnark-crypto's BN254 multi-pairing check, which verifies the
// product of pairings equals the identity in GT without computing each
// pairing independently.
func Verify(vk *VerifyingKey, proof *Proof, publicInputs []fr.Element) error {
	if vk == nil || proof == nil {
		return ErrNilVerifyingKey
	}
	if len(vk.IC) != len(publicInputs)+1 {
		return ErrICMismatch
	}

	// vk_x = IC[0] + sum_i(IC[i+1] * input[i])
	vkX := vk.IC[0]
	for i := range publicInputs {
		var scaled bn254.G1Affine
		var inputBig big.Int
		publicInputs[i].BigInt(&inputBig)
		scaled.ScalarMultiplication(&vk.IC[i+1], &inputBig)
		vkX.Add(&vkX, &scaled)
	}

	// Negate A so the product of all four pairings should equal 1:
	// e(-A, B) * e(Alpha, Beta) * e(vk_x, Gamma) * e(C, Delta) == 1
	var negA bn254.G1Affine
	negA.Neg(&proof.A)

	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{negA, vk.Alpha, vkX, proof.C},
		[]bn254.G2Affine{proof.B, vk.Beta, vk.Gamma, vk.Delta},
	)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPairingFailed
	}
	return nil
}

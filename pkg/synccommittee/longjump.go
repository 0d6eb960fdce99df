package synccommittee

import (
	"encoding/binary"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/corpus-core/colibri-stateless/pkg/sszproof"
	"github.com/corpus-core/colibri-stateless/pkg/zkregistry"
)

// ZkTransition is the public output a recursive zk sub-proof commits
// to: (current_keys_root, next_keys_root, next_period,
// attested_header_root, domain), covering an aggregated multi-period
// committee transition in one check.
type ZkTransition struct {
	CurrentKeysRoot    [32]byte
	NextKeysRoot       [32]byte
	NextPeriod         uint64
	AttestedHeaderRoot [32]byte
	Domain             [4]byte
}

// PublicInputs renders the transition as BN254 scalar field elements in
// the fixed order the registered circuit expects.
func (t ZkTransition) PublicInputs() []fr.Element {
	var cur, next, period, header, domain fr.Element
	cur.SetBytes(t.CurrentKeysRoot[:])
	next.SetBytes(t.NextKeysRoot[:])
	period.SetUint64(t.NextPeriod)
	header.SetBytes(t.AttestedHeaderRoot[:])
	domain.SetBytes(t.Domain[:])
	return []fr.Element{cur, next, period, header, domain}
}

// AdvanceViaZkProof substitutes the chain of per-period verifications
// with a single zk sub-proof covering the aggregated transition. Instead
// of per-period branch and signature checks, the engine checks that the
// sub-proof's asserted current_keys_root matches the engine's starting
// snapshot, that next_period lies ahead of it, that the domain is
// DOMAIN_SYNC_COMMITTEE, and the pairing against the chain's registered
// verifying key. nextPubkeys is the actual pubkey
// list for the landing period, fetched out of band; its SSZ root must
// match the sub-proof's committed next_keys_root so the resulting
// snapshot can still back ordinary per-period Advance calls afterward.
func (e *Engine) AdvanceViaZkProof(chainID uint64, transition ZkTransition, proof *zkregistry.Proof, nextPubkeys [][]byte) error {
	current, err := e.CurrentSnapshot(chainID)
	if err != nil {
		return err
	}
	if transition.CurrentKeysRoot != current.Root {
		return ErrChainBroken
	}
	if transition.NextPeriod <= current.Period {
		return ErrPeriodMismatch
	}
	if transition.Domain != DomainSyncCommittee {
		return ErrWrongDomain
	}

	recomputed, err := sszproof.CommitteeRoot(nextPubkeys)
	if err != nil {
		return err
	}
	if recomputed != transition.NextKeysRoot {
		return ErrCommitteeRootMismatch
	}

	if err := zkregistry.VerifyForChain(chainID, proof, transition.PublicInputs()); err != nil {
		return err
	}

	next := &Snapshot{
		ChainID: chainID,
		Period:  transition.NextPeriod,
		Pubkeys: nextPubkeys,
		Root:    recomputed,
	}
	if err := e.writeSnapshot(next); err != nil {
		return err
	}
	e.log.Info("sync committee advanced via zk sub-proof", "chain", chainID, "from", current.Period, "to", transition.NextPeriod)
	return nil
}

// CheckZkTransition verifies a zk sub-proof's pairing equation and its
// binding to the engine's current trust anchor without persisting a new
// snapshot — the read-only half of AdvanceViaZkProof a verifier uses
// when it only needs to accept one proof, not adopt the transition for
// future per-period Advance calls.
func (e *Engine) CheckZkTransition(chainID uint64, transition ZkTransition, proof *zkregistry.Proof) error {
	current, err := e.CurrentSnapshot(chainID)
	if err != nil {
		return err
	}
	if transition.CurrentKeysRoot != current.Root {
		return ErrChainBroken
	}
	if transition.NextPeriod <= current.Period {
		return ErrPeriodMismatch
	}
	if transition.Domain != DomainSyncCommittee {
		return ErrWrongDomain
	}
	return zkregistry.VerifyForChain(chainID, proof, transition.PublicInputs())
}

// ZkTransitionWireLen is ZkTransition's flat encoding: two 32-byte roots,
// an 8-byte period, a 32-byte header root, and a 4-byte domain.
const ZkTransitionWireLen = 32 + 32 + 8 + 32 + 4

// Encode renders a ZkTransition as its flat wire form, used for the
// ZK_SUBPROOF proof blob section alongside the encoded zkregistry.Proof.
func (t ZkTransition) Encode() []byte {
	buf := make([]byte, ZkTransitionWireLen)
	copy(buf[0:32], t.CurrentKeysRoot[:])
	copy(buf[32:64], t.NextKeysRoot[:])
	binary.LittleEndian.PutUint64(buf[64:72], t.NextPeriod)
	copy(buf[72:104], t.AttestedHeaderRoot[:])
	copy(buf[104:108], t.Domain[:])
	return buf
}

// DecodeZkTransition is the inverse of ZkTransition.Encode.
func DecodeZkTransition(b []byte) (ZkTransition, error) {
	if len(b) != ZkTransitionWireLen {
		return ZkTransition{}, fmt.Errorf("synccommittee: malformed zk transition bytes: got %d want %d", len(b), ZkTransitionWireLen)
	}
	var t ZkTransition
	copy(t.CurrentKeysRoot[:], b[0:32])
	copy(t.NextKeysRoot[:], b[32:64])
	t.NextPeriod = binary.LittleEndian.Uint64(b[64:72])
	copy(t.AttestedHeaderRoot[:], b[72:104])
	copy(t.Domain[:], b[104:108])
	return t, nil
}

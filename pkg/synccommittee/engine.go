package synccommittee

import (
	"crypto/sha256"

	"github.com/corpus-core/colibri-stateless/pkg/bls"
	"github.com/corpus-core/colibri-stateless/pkg/sszproof"
	"github.com/corpus-core/colibri-stateless/pkg/store"
)

// HeaderRoot is a simplified SSZ hash-tree-root of the five-field
// BeaconBlockHeader container: successive sha256 pairings of its
// fields, with slot and proposer index as little-endian 32-byte leaves.
// The right subtree is hash(body_root, zero) rather than the two-level
// zero-padded subtree full SSZ merkleization of five fields produces, so
// the result differs from the beacon chain's own header root.
func HeaderRoot(h Header) [32]byte {
	var slotLeaf, proposerLeaf [32]byte
	putUint64LE(slotLeaf[:], h.Slot)
	putUint64LE(proposerLeaf[:], h.ProposerIndex)

	left := hashPair(slotLeaf, proposerLeaf)
	right := hashPair(h.ParentRoot, h.StateRoot)
	leftRight := hashPair(left, right)
	return hashPair(leftRight, hashPair(h.BodyRoot, [32]byte{}))
}

func putUint64LE(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> (8 * uint(i)))
	}
}

func hashPair(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// signingRoot computes hash_tree_root({ header, domain }), the message
// the sync committee actually signs.
func signingRoot(header Header, domain [4]byte) [32]byte {
	var domainLeaf [32]byte
	copy(domainLeaf[:], domain[:])
	return hashPair(HeaderRoot(header), domainLeaf)
}

// Bootstrap seeds a chain with no stored snapshot. The first snapshot
// is accepted on the sole basis of the configured trust anchor.
func (e *Engine) Bootstrap(b *Bootstrap) error {
	if HeaderRoot(b.Header) != b.TrustedRoot {
		return ErrBootstrapMismatch
	}
	if len(b.CurrentCommittee.Pubkeys) != CommitteeSize {
		return sszproof.ErrWrongPubkeyCount
	}
	root, err := sszproof.CommitteeRoot(b.CurrentCommittee.Pubkeys)
	if err != nil {
		return err
	}
	if root != b.CurrentCommittee.Root {
		return ErrCommitteeRootMismatch
	}

	period := Period(b.Header.Slot)
	snap := &Snapshot{
		ChainID: b.CurrentCommittee.ChainID,
		Period:  period,
		Pubkeys: b.CurrentCommittee.Pubkeys,
		Root:    root,
	}
	if err := e.writeSnapshot(snap); err != nil {
		return err
	}
	e.log.Info("sync committee bootstrapped", "chain", snap.ChainID, "period", period, "slot", b.Header.Slot)
	return nil
}

// CurrentSnapshot returns the highest-period snapshot stored for a
// chain. A store whose sync_latest pointer leads a missing snapshot
// (crash between the two writes) is treated as "needs rebootstrap",
// surfaced here as ErrNoSnapshot.
func (e *Engine) CurrentSnapshot(chainID uint64) (*Snapshot, error) {
	latestBytes, found := e.store.Get(store.SyncLatestKey(chainID))
	if !found {
		return nil, ErrNoSnapshot
	}
	period, err := decodeLatest(latestBytes)
	if err != nil {
		return nil, err
	}
	snapBytes, found := e.store.Get(store.SyncSnapshotKey(chainID, period))
	if !found {
		return nil, ErrNoSnapshot
	}
	return decodeSnapshot(snapBytes)
}

// Advance moves the chain from its current period p to p+1 by verifying
// a signed update against the committee at p: branch check, committee
// root recomputation, aggregate signature, participation threshold,
// then snapshot persistence, in that order.
func (e *Engine) Advance(chainID uint64, update *Update) error {
	current, err := e.CurrentSnapshot(chainID)
	if err != nil {
		return err
	}

	// Step 1: verify the SSZ branch proving next_sync_committee.pubkeys
	// at the fork-dependent generalized index within the attested
	// state_root.
	gIndex, err := sszproof.GeneralizedIndex(len(update.NextSyncCommitteeBranch))
	if err != nil {
		return ErrInvalidBranch
	}
	if !sszproof.VerifyGeneralizedIndexBranch(
		update.AttestedHeader.StateRoot,
		update.NextSyncCommitteeRoot,
		update.NextSyncCommitteeBranch,
		gIndex,
	) {
		return ErrInvalidBranch
	}

	// Step 2: recompute the SSZ hash-tree-root of the 512 pubkeys and
	// require equality with the committee root carried in the update.
	recomputedRoot, err := sszproof.CommitteeRoot(update.NextSyncCommitteePubkeys)
	if err != nil {
		return err
	}
	if recomputedRoot != update.NextSyncCommitteeRoot {
		return ErrCommitteeRootMismatch
	}

	// Step 3: verify the aggregate BLS signature over the signing root,
	// aggregating only participating pubkeys from the *current* (p)
	// committee, under DOMAIN_SYNC_COMMITTEE.
	participants, participantCount := selectParticipants(current.Pubkeys, update.SyncAggregate.SyncCommitteeBits)
	if participantCount == 0 {
		return ErrInsufficientParticipation
	}
	root := signingRoot(update.AttestedHeader, DomainSyncCommittee)
	ok, err := bls.FastAggregateVerify(participants, root[:], update.SyncAggregate.SyncCommitteeSignature)
	if err != nil {
		return ErrInvalidSignature
	}
	if !ok {
		return ErrInvalidSignature
	}

	// Step 4: require participation >= 2/3 of the 512 seats.
	if participantCount*3 < CommitteeSize*2 {
		return ErrInsufficientParticipation
	}

	// Step 5: write a new snapshot at period p+1 and advance sync_latest.
	nextPeriod := current.Period + 1
	if Period(update.AttestedHeader.Slot) != nextPeriod && Period(update.AttestedHeader.Slot) != current.Period {
		return ErrPeriodMismatch
	}
	next := &Snapshot{
		ChainID: chainID,
		Period:  nextPeriod,
		Pubkeys: update.NextSyncCommitteePubkeys,
		Root:    recomputedRoot,
	}
	if err := e.writeSnapshot(next); err != nil {
		return err
	}
	e.log.Info("sync committee advanced", "chain", chainID, "period", nextPeriod, "participants", participantCount)
	return nil
}

// writeSnapshot writes the snapshot before publishing the advanced
// sync_latest pointer, so readers that see the pointer can always get
// the pointed-to snapshot.
func (e *Engine) writeSnapshot(s *Snapshot) error {
	if err := e.store.Set(store.SyncSnapshotKey(s.ChainID, s.Period), encodeSnapshot(s)); err != nil {
		return err
	}
	return e.store.Set(store.SyncLatestKey(s.ChainID), encodeLatest(s.Period))
}

func selectParticipants(committee [][]byte, bits []byte) ([][]byte, int) {
	var out [][]byte
	for i := 0; i < CommitteeSize && i < len(committee); i++ {
		byteIdx, bitIdx := i/8, uint(i%8)
		if byteIdx < len(bits) && bits[byteIdx]&(1<<bitIdx) != 0 {
			out = append(out, committee[i])
		}
	}
	return out, len(out)
}

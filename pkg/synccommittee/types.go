// Package synccommittee implements the light-client sync engine: it
// maintains a trusted chain of sync-committee snapshots and advances it
// one period at a time by verifying signed updates, or in one jump via
// a registered zk sub-proof.
package synccommittee

import (
	"log/slog"

	"github.com/corpus-core/colibri-stateless/pkg/store"
)

// SlotsPerPeriod is EPOCHS_PER_SYNC_COMMITTEE_PERIOD * SLOTS_PER_EPOCH
// (256 * 32); one period covers 8192 consensus slots.
const SlotsPerPeriod = 8192

const CommitteeSize = 512

// DomainSyncCommittee is the 4-byte prefix selecting sync-committee
// signatures (DOMAIN_SYNC_COMMITTEE).
var DomainSyncCommittee = [4]byte{0x07, 0x00, 0x00, 0x00}

// Period computes the sync committee period index for a given slot.
func Period(slot uint64) uint64 { return slot / SlotsPerPeriod }

// PeriodStartSlot returns the first slot of the given period.
func PeriodStartSlot(period uint64) uint64 { return period * SlotsPerPeriod }

// Snapshot is the persisted unit of trust: 512 BLS pubkeys for a period
// plus their SSZ hash-tree-root.
type Snapshot struct {
	ChainID uint64
	Period  uint64
	Pubkeys [][]byte // 512 entries, 48 bytes each
	Root    [32]byte
}

// Header is the minimal consensus block header the engine needs: enough
// to derive the signing root and to check the execution state-root
// binding.
type Header struct {
	Slot          uint64
	ProposerIndex uint64
	ParentRoot    [32]byte
	StateRoot     [32]byte
	BodyRoot      [32]byte
}

// SyncAggregate is the aggregate BLS signature plus participation
// bitfield a light-client update carries.
type SyncAggregate struct {
	SyncCommitteeBits      []byte // 64-byte (512-bit) participation bitfield
	SyncCommitteeSignature []byte // 96-byte compressed G2 aggregate signature
}

// Update bundles an attested header, its committed next sync committee
// and branch, and the aggregate signature over the previous period's
// committee.
type Update struct {
	AttestedHeader           Header
	NextSyncCommitteeRoot    [32]byte
	NextSyncCommitteePubkeys [][]byte   // the 512 pubkeys the branch commits to
	NextSyncCommitteeBranch  [][32]byte // Deneb depth 10 or Electra depth 11
	SyncAggregate            SyncAggregate
	SignatureSlot            uint64
}

// Bootstrap is the data fetched from a checkpointz directory to seed a
// chain with no existing snapshot.
type Bootstrap struct {
	Header           Header
	CurrentCommittee *Snapshot
	TrustedRoot      [32]byte // the out-of-band block-hash/checkpoint-hash anchor
}

// Engine is the sync-committee state machine for one or more chains,
// backed by a shared Store.
type Engine struct {
	store store.Store
	log   *slog.Logger
}

func New(s store.Store) *Engine {
	return &Engine{store: s, log: slog.Default()}
}

// SetLogger replaces the engine's logger. Not safe to call concurrently
// with Bootstrap/Advance.
func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.log = l
	}
}

// Package verifier is the proof verifier:
// given a proof blob, an RPC method+params, and a chain id, it parses
// the blob, replays the consensus checks through pkg/synccommittee,
// replays the execution-layer inclusion checks through
// pkg/triewitness, and returns the decoded RPC answer.
package verifier

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/corpus-core/colibri-stateless/pkg/corestatus"
	"github.com/corpus-core/colibri-stateless/pkg/driver"
	"github.com/corpus-core/colibri-stateless/pkg/proofblob"
	"github.com/corpus-core/colibri-stateless/pkg/registry"
	"github.com/corpus-core/colibri-stateless/pkg/sszproof"
	"github.com/corpus-core/colibri-stateless/pkg/synccommittee"
	"github.com/corpus-core/colibri-stateless/pkg/triewitness"
	"github.com/corpus-core/colibri-stateless/pkg/zkregistry"
)

// Params bundles the arguments a verifier driver is created from. When
// Engine has no snapshot yet for ChainID and Bootstrap is supplied, the
// engine is seeded from it before the consensus replay, but only if its
// trusted root matches TrustedAnchor; otherwise the anchor is assumed
// to have been consumed by an earlier synccommittee.Bootstrap call
// against the same Engine/store.
type Params struct {
	Proof         []byte
	Method        string
	Args          json.RawMessage
	ChainID       uint64
	TrustedAnchor [32]byte
	Bootstrap     *synccommittee.Bootstrap
	Reg           *registry.Registry
	Engine        *synccommittee.Engine
}

// Create builds a verifier Driver for one proof. It fails fast with
// InvalidArgument on NUL-carrying or non-UTF-8 inputs, InvalidProof if
// the blob's section framing cannot be parsed, and MethodNotSupported if
// the registry rejects the method, mirroring the prover's create
// contract. The HEADER section itself is decoded on the first Step.
func Create(p Params) (*driver.Driver, *corestatus.DriverError) {
	if derr := corestatus.CheckTextInput(p.Method, p.Args); derr != nil {
		return nil, derr
	}
	info, err := p.Reg.Classify(p.Method)
	if err != nil || info.Capability == registry.Unsupported {
		return nil, corestatus.New(corestatus.KindMethodNotSupported, "method %q is not supported", p.Method)
	}
	sections, decErr := proofblob.Decode(p.Proof)
	if decErr != nil {
		return nil, corestatus.New(corestatus.KindInvalidProof, "%v", decErr)
	}
	return driver.New(func(_ *driver.Session) ([]byte, *corestatus.DriverError) {
		return run(sections, p, info)
	}), nil
}

// run performs the whole verification in one pass: it needs no further
// external data once the blob and a usable sync-committee store are in
// hand, so the driver never emits a request and terminates on its first
// Step.
func run(sections []proofblob.Section, p Params, info registry.MethodInfo) ([]byte, *corestatus.DriverError) {
	hdrSection := proofblob.Find(sections, proofblob.Header)
	if hdrSection == nil {
		return nil, corestatus.New(corestatus.KindInvalidProof, "missing HEADER section")
	}
	hdr, err := proofblob.DecodeHeaderPayload(hdrSection.Payload)
	if err != nil {
		return nil, corestatus.New(corestatus.KindInvalidProof, "%v", err)
	}
	if hdr.ChainID != p.ChainID {
		return nil, corestatus.New(corestatus.KindInvalidProof, "proof chain id %d does not match requested chain %d", hdr.ChainID, p.ChainID)
	}

	beaconSection := proofblob.Find(sections, proofblob.BeaconHeader)
	if beaconSection == nil {
		return nil, corestatus.New(corestatus.KindInvalidProof, "missing BEACON_HEADER section")
	}
	header, err := synccommittee.DecodeHeader(beaconSection.Payload)
	if err != nil {
		return nil, corestatus.New(corestatus.KindInvalidProof, "%v", err)
	}

	if derr := bootstrapIfNeeded(p); derr != nil {
		return nil, derr
	}
	if derr := replayConsensus(sections, header, p); derr != nil {
		return nil, derr
	}

	if info.Capability == registry.Proofable {
		if derr := replayExecution(sections, header, info); derr != nil {
			return nil, derr
		}
	}

	answerSection := proofblob.Find(sections, proofblob.Answer)
	if answerSection == nil {
		return nil, corestatus.New(corestatus.KindProofPlanFailure, "missing ANSWER section")
	}
	return answerSection.Payload, nil
}

// bootstrapIfNeeded seeds the engine from p.Bootstrap when no snapshot
// is stored yet for the chain. The bootstrap data is accepted only on
// the basis of the caller's trust anchor.
func bootstrapIfNeeded(p Params) *corestatus.DriverError {
	if p.Bootstrap == nil {
		return nil
	}
	if _, err := p.Engine.CurrentSnapshot(p.ChainID); !errors.Is(err, synccommittee.ErrNoSnapshot) {
		return nil
	}
	if p.Bootstrap.TrustedRoot != p.TrustedAnchor {
		return corestatus.New(corestatus.KindInvalidProof, "bootstrap data does not match the trusted anchor")
	}
	if err := p.Engine.Bootstrap(p.Bootstrap); err != nil {
		return classifySyncError(err)
	}
	return nil
}

// replayConsensus verifies the proof's consensus witness: either a
// chain of light-client updates (here, the single update the blob
// carries) or a zk sub-proof covering a long jump.
func replayConsensus(sections []proofblob.Section, header synccommittee.Header, p Params) *corestatus.DriverError {
	if zkSection := proofblob.Find(sections, proofblob.ZkSubProof); zkSection != nil {
		return replayZkTransition(zkSection.Payload, header, p)
	}

	syncSection := proofblob.Find(sections, proofblob.SyncSignature)
	if syncSection == nil {
		return corestatus.New(corestatus.KindInvalidProof, "missing SYNC_SIGNATURE section")
	}
	update, err := synccommittee.DecodeUpdate(syncSection.Payload)
	if err != nil {
		return corestatus.New(corestatus.KindInvalidProof, "%v", err)
	}
	if update.AttestedHeader != header {
		return corestatus.New(corestatus.KindInvalidProof, "%v", synccommittee.ErrStateRootMismatch)
	}

	if err := p.Engine.Advance(p.ChainID, &update); err != nil {
		return classifySyncError(err)
	}
	return nil
}

func replayZkTransition(payload []byte, header synccommittee.Header, p Params) *corestatus.DriverError {
	if len(payload) < synccommittee.ZkTransitionWireLen {
		return corestatus.New(corestatus.KindInvalidProof, "truncated ZK_SUBPROOF section")
	}
	transition, err := synccommittee.DecodeZkTransition(payload[:synccommittee.ZkTransitionWireLen])
	if err != nil {
		return corestatus.New(corestatus.KindInvalidProof, "%v", err)
	}
	proof, err := zkregistry.DecodeProof(payload[synccommittee.ZkTransitionWireLen:])
	if err != nil {
		return corestatus.New(corestatus.KindInvalidProof, "%v", err)
	}
	if transition.AttestedHeaderRoot != headerRootFor(header) {
		return corestatus.New(corestatus.KindInvalidProof, "%v", synccommittee.ErrStateRootMismatch)
	}
	if err := p.Engine.CheckZkTransition(p.ChainID, transition, proof); err != nil {
		return classifySyncError(err)
	}
	return nil
}

// headerRootFor re-derives the SSZ hash-tree-root a zk sub-proof commits
// to from the decoded header, so it can be compared against the
// sub-proof's public output without re-running the engine's internal
// root computation.
func headerRootFor(h synccommittee.Header) [32]byte {
	return synccommittee.HeaderRoot(h)
}

func classifySyncError(err error) *corestatus.DriverError {
	switch {
	case errors.Is(err, synccommittee.ErrInvalidSignature):
		return corestatus.New(corestatus.KindInvalidSignature, "%v", err)
	case errors.Is(err, synccommittee.ErrInsufficientParticipation):
		return corestatus.New(corestatus.KindInsufficientParticipation, "%v", err)
	case errors.Is(err, synccommittee.ErrChainBroken):
		return corestatus.New(corestatus.KindChainBroken, "%v", err)
	default:
		return corestatus.New(corestatus.KindInvalidProof, "%v", err)
	}
}

// replayExecution derives the execution state root from the SSZ_BRANCH
// section anchored at the header's state root, verifies the
// PATRICIA_WITNESS section against it, and cross-checks the
// witness-derived value against the ANSWER section for the methods
// whose answer is a single trie value.
func replayExecution(sections []proofblob.Section, header synccommittee.Header, info registry.MethodInfo) *corestatus.DriverError {
	brSection := proofblob.Find(sections, proofblob.SSZBranch)
	if brSection == nil {
		return corestatus.New(corestatus.KindProofPlanFailure, "missing SSZ_BRANCH section for proofable method")
	}
	erp, err := sszproof.DecodeExecutionRootProof(brSection.Payload)
	if err != nil {
		return corestatus.New(corestatus.KindInvalidProof, "%v", err)
	}
	if !erp.Verify(header.StateRoot) {
		return corestatus.New(corestatus.KindInvalidProof, "execution state root does not anchor to the attested state root")
	}

	witSection := proofblob.Find(sections, proofblob.PatriciaWitness)
	if witSection == nil {
		return corestatus.New(corestatus.KindProofPlanFailure, "missing PATRICIA_WITNESS section for proofable method")
	}
	w, err := triewitness.DecodeWitness(witSection.Payload)
	if err != nil {
		return corestatus.New(corestatus.KindInvalidProof, "%v", err)
	}

	acc, storageValue, err := triewitness.VerifyWitness(common.Hash(erp.ExecutionStateRoot), w)
	if err != nil {
		return corestatus.New(corestatus.KindInvalidProof, "%v", err)
	}

	answerSection := proofblob.Find(sections, proofblob.Answer)
	if answerSection == nil {
		return corestatus.New(corestatus.KindProofPlanFailure, "missing ANSWER section")
	}

	// Only the two methods whose answer is a single verifiable scalar get
	// a cross-check here. For eth_getTransactionCount/eth_getCode/
	// eth_getTransactionReceipt the witness is verified against the state
	// root, but the ANSWER bytes are not compared with anything it proves.
	switch info.Name {
	case "eth_getStorageAt":
		if !bytes.Equal(answerSection.Payload, storageValue) {
			return corestatus.New(corestatus.KindInvalidProof, "answer does not match verified storage value")
		}
	case "eth_getBalance":
		if !bytes.Equal(answerSection.Payload, acc.Balance.Bytes()) {
			return corestatus.New(corestatus.KindInvalidProof, "answer does not match verified account balance")
		}
	}
	return nil
}

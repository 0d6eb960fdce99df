package prover_test

import (
	"crypto/sha256"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"github.com/corpus-core/colibri-stateless/pkg/corestatus"
	"github.com/corpus-core/colibri-stateless/pkg/driver"
	"github.com/corpus-core/colibri-stateless/pkg/proofblob"
	"github.com/corpus-core/colibri-stateless/pkg/prover"
	"github.com/corpus-core/colibri-stateless/pkg/registry"
	"github.com/corpus-core/colibri-stateless/pkg/request"
	"github.com/corpus-core/colibri-stateless/pkg/sszproof"
	"github.com/corpus-core/colibri-stateless/pkg/synccommittee"
	"github.com/corpus-core/colibri-stateless/pkg/triewitness"
)

func handleForGen(gen uint64, v corestatus.RequestView) request.Handle {
	return request.Handle{ReqPtr: v.ReqPtr, Generation: gen}
}

// respond answers the single pending request of one step and re-steps.
func respond(t *testing.T, d *driver.Driver, status corestatus.Status, payload []byte) corestatus.Status {
	t.Helper()
	require.Equal(t, corestatus.PhasePending, status.Phase)
	require.Len(t, status.Requests, 1)
	require.True(t, d.SetResponse(handleForGen(d.Generation(), status.Requests[0]), payload, 0))
	return d.Step()
}

func hashPairForTest(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
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

// singleLeafProof builds a one-entry Merkle-Patricia trie whose root
// node is the leaf itself, returning the trie root and the proof node
// list trie.VerifyProof accepts.
func singleLeafProof(key []byte, value []byte) (common.Hash, [][]byte) {
	path := append([]byte{0x20}, key...) // hex-prefix: even-length, terminated
	node, _ := rlp.EncodeToBytes([][]byte{path, value})
	return crypto.Keccak256Hash(node), [][]byte{node}
}

func encodeAccount(nonce uint64, balance *big.Int, storageRoot common.Hash) []byte {
	enc, _ := rlp.EncodeToBytes(struct {
		Nonce    uint64
		Balance  *big.Int
		Root     common.Hash
		CodeHash []byte
	}{nonce, balance, storageRoot, make([]byte, 32)})
	return enc
}

// structuralUpdate builds a decodable update attesting header. The
// prover does not verify signatures, so zeroed aggregate fields are
// enough for composer-side tests.
func structuralUpdate(header synccommittee.Header) synccommittee.Update {
	return synccommittee.Update{
		AttestedHeader:          header,
		NextSyncCommitteeBranch: make([][32]byte, sszproof.DenebBranchDepth),
		SyncAggregate: synccommittee.SyncAggregate{
			SyncCommitteeBits:      make([]byte, synccommittee.CommitteeSize/8),
			SyncCommitteeSignature: make([]byte, 96),
		},
	}
}

// balanceFixture is everything a consistent eth_getBalance composition
// needs: a one-account execution trie and a header whose state root
// anchors that trie through the execution root branch.
type balanceFixture struct {
	witness triewitness.Witness
	erp     sszproof.ExecutionRootProof
	header  synccommittee.Header
	update  synccommittee.Update
	balance *big.Int
}

func makeBalanceFixture(t *testing.T, addr common.Address) balanceFixture {
	t.Helper()
	balance := big.NewInt(1000)
	accountRLP := encodeAccount(7, balance, common.Hash{})
	execRoot, accountProof := singleLeafProof(crypto.Keccak256(addr.Bytes()), accountRLP)

	erp := sszproof.ExecutionRootProof{
		ExecutionStateRoot: [32]byte(execRoot),
		Branch:             make([][32]byte, sszproof.DenebBranchDepth),
	}
	gIndex, err := sszproof.ExecutionRootGeneralizedIndex(sszproof.DenebBranchDepth)
	require.NoError(t, err)

	header := synccommittee.Header{Slot: 100}
	header.StateRoot = rootFromBranch(erp.ExecutionStateRoot, erp.Branch, gIndex)

	return balanceFixture{
		witness: triewitness.Witness{Address: addr, AccountProof: accountProof},
		erp:     erp,
		header:  header,
		update:  structuralUpdate(header),
		balance: balance,
	}
}

func TestCreateRejectsUnsupportedMethod(t *testing.T) {
	_, derr := prover.Create(prover.Params{
		Method:  "eth_sendRawTransaction",
		Args:    json.RawMessage(`[]`),
		ChainID: 1,
		Reg:     registry.Default(),
	})
	require.NotNil(t, derr)
	require.Equal(t, corestatus.KindMethodNotSupported, derr.Kind)
}

func TestCreateRejectsNULAndInvalidUTF8(t *testing.T) {
	_, derr := prover.Create(prover.Params{
		Method:  "eth_block\x00Number",
		Args:    json.RawMessage(`[]`),
		ChainID: 1,
		Reg:     registry.Default(),
	})
	require.NotNil(t, derr)
	require.Equal(t, corestatus.KindInvalidArgument, derr.Kind)

	_, derr = prover.Create(prover.Params{
		Method:  "eth_blockNumber",
		Args:    json.RawMessage{0xff, 0xfe},
		ChainID: 1,
		Reg:     registry.Default(),
	})
	require.NotNil(t, derr)
	require.Equal(t, corestatus.KindInvalidArgument, derr.Kind)
}

func TestLocallyAnswerableUsesOnlyConsensusFetches(t *testing.T) {
	d, derr := prover.Create(prover.Params{
		Method:  "eth_blockNumber",
		Args:    json.RawMessage(`[]`),
		ChainID: 1,
		Reg:     registry.Default(),
		Pools:   prover.PoolSizes{BeaconAPI: 2},
	})
	require.Nil(t, derr)

	header := synccommittee.Header{Slot: 0x123, StateRoot: [32]byte{9}}
	update := structuralUpdate(header)

	status := d.Step()
	require.Equal(t, "beacon_api", status.Requests[0].Type)
	status = respond(t, d, status, synccommittee.EncodeHeader(header))
	require.Equal(t, "beacon_api", status.Requests[0].Type)
	status = respond(t, d, status, synccommittee.EncodeUpdate(update))
	require.Equal(t, corestatus.PhaseSuccess, status.Phase)

	blob, ok := d.Proof()
	require.True(t, ok)
	sections, err := proofblob.Decode(blob)
	require.NoError(t, err)
	require.NotNil(t, proofblob.Find(sections, proofblob.BeaconHeader))
	require.NotNil(t, proofblob.Find(sections, proofblob.SyncSignature))
	require.Equal(t, []byte("0x123"), proofblob.Find(sections, proofblob.Answer).Payload)
}

func TestLocallyAnswerableRejectsMismatchedUpdate(t *testing.T) {
	d, derr := prover.Create(prover.Params{
		Method:  "eth_blockNumber",
		Args:    json.RawMessage(`[]`),
		ChainID: 1,
		Reg:     registry.Default(),
		Pools:   prover.PoolSizes{BeaconAPI: 1},
	})
	require.Nil(t, derr)

	header := synccommittee.Header{Slot: 5}
	other := structuralUpdate(synccommittee.Header{Slot: 6})

	status := d.Step()
	status = respond(t, d, status, synccommittee.EncodeHeader(header))
	status = respond(t, d, status, synccommittee.EncodeUpdate(other))
	require.Equal(t, corestatus.PhaseError, status.Phase)
	require.Equal(t, corestatus.KindProofPlanFailure, status.Err.Kind)
}

func TestProofableAssemblesVerifiableSections(t *testing.T) {
	addr := common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb")
	fx := makeBalanceFixture(t, addr)

	d, derr := prover.Create(prover.Params{
		Method:  "eth_getBalance",
		Args:    json.RawMessage(`["0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb", "latest"]`),
		ChainID: 1,
		Reg:     registry.Default(),
		Pools:   prover.PoolSizes{BeaconAPI: 2, JSONRPC: 2},
	})
	require.Nil(t, derr)

	status := d.Step()
	require.Contains(t, string(status.Requests[0].Payload), "eth_getBalance")
	status = respond(t, d, status, fx.balance.Bytes())
	require.Contains(t, string(status.Requests[0].Payload), "eth_getProof")
	status = respond(t, d, status, fx.witness.Encode())
	status = respond(t, d, status, synccommittee.EncodeHeader(fx.header))
	status = respond(t, d, status, synccommittee.EncodeUpdate(fx.update))
	status = respond(t, d, status, fx.erp.Encode())
	require.Equal(t, corestatus.PhaseSuccess, status.Phase)

	blob, ok := d.Proof()
	require.True(t, ok)
	sections, err := proofblob.Decode(blob)
	require.NoError(t, err)
	require.NotNil(t, proofblob.Find(sections, proofblob.SSZBranch))
	require.NotNil(t, proofblob.Find(sections, proofblob.PatriciaWitness))
	require.Equal(t, fx.balance.Bytes(), proofblob.Find(sections, proofblob.Answer).Payload)

	// The sections decode with the same codecs the verifier uses.
	decodedHeader, err := synccommittee.DecodeHeader(proofblob.Find(sections, proofblob.BeaconHeader).Payload)
	require.NoError(t, err)
	require.Equal(t, fx.header, decodedHeader)
	_, err = synccommittee.DecodeUpdate(proofblob.Find(sections, proofblob.SyncSignature).Payload)
	require.NoError(t, err)
}

func TestProofableRejectsAnswerWitnessMismatch(t *testing.T) {
	addr := common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb")
	fx := makeBalanceFixture(t, addr)

	d, derr := prover.Create(prover.Params{
		Method:  "eth_getBalance",
		Args:    json.RawMessage(`["0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb", "latest"]`),
		ChainID: 1,
		Reg:     registry.Default(),
		Pools:   prover.PoolSizes{BeaconAPI: 2, JSONRPC: 2},
	})
	require.Nil(t, derr)

	status := d.Step()
	status = respond(t, d, status, []byte{0xde, 0xad}) // wrong answer
	status = respond(t, d, status, fx.witness.Encode())
	status = respond(t, d, status, synccommittee.EncodeHeader(fx.header))
	status = respond(t, d, status, synccommittee.EncodeUpdate(fx.update))
	status = respond(t, d, status, fx.erp.Encode())
	require.Equal(t, corestatus.PhaseError, status.Phase)
	require.Equal(t, corestatus.KindProofPlanFailure, status.Err.Kind)
}

func TestProofableRejectsMalformedParams(t *testing.T) {
	d, derr := prover.Create(prover.Params{
		Method:  "eth_getBalance",
		Args:    json.RawMessage(`[invalid json`),
		ChainID: 1,
		Reg:     registry.Default(),
		Pools:   prover.PoolSizes{BeaconAPI: 1, JSONRPC: 1},
	})
	require.Nil(t, derr)

	status := d.Step()
	require.Equal(t, corestatus.PhaseError, status.Phase)
	require.Equal(t, corestatus.KindInvalidArgument, status.Err.Kind)
}

// Package prover is the proof composer: given an RPC method, params,
// and chain id, it plans the data requests, drives them through
// pkg/driver, and assembles a self-describing proof blob. Every fetched
// payload is decoded into its typed form and re-serialized through the
// same codecs pkg/verifier decodes, so a blob this package emits is by
// construction parseable by the verifier.
package prover

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/corpus-core/colibri-stateless/pkg/corestatus"
	"github.com/corpus-core/colibri-stateless/pkg/driver"
	"github.com/corpus-core/colibri-stateless/pkg/proofblob"
	"github.com/corpus-core/colibri-stateless/pkg/registry"
	"github.com/corpus-core/colibri-stateless/pkg/request"
	"github.com/corpus-core/colibri-stateless/pkg/sszproof"
	"github.com/corpus-core/colibri-stateless/pkg/synccommittee"
	"github.com/corpus-core/colibri-stateless/pkg/triewitness"
)

// PoolSizes tells Fetch how many configured candidates back each request
// type, so the exclude-mask retry policy can recognize exhaustion.
type PoolSizes struct {
	BeaconAPI   int
	JSONRPC     int
	Checkpointz int
}

// Params bundles the arguments a prover driver is created from.
type Params struct {
	Method  string
	Args    json.RawMessage
	ChainID uint64
	Reg     *registry.Registry
	Pools   PoolSizes
}

// Create builds a prover Driver for one RPC call. It fails fast with
// InvalidArgument on NUL-carrying or non-UTF-8 inputs and with
// MethodNotSupported if the registry rejects the method, mirroring the
// verifier's create contract.
func Create(p Params) (*driver.Driver, *corestatus.DriverError) {
	if derr := corestatus.CheckTextInput(p.Method, p.Args); derr != nil {
		return nil, derr
	}
	info, err := p.Reg.Classify(p.Method)
	if err != nil || info.Capability == registry.Unsupported {
		return nil, corestatus.New(corestatus.KindMethodNotSupported, "method %q is not supported", p.Method)
	}
	return driver.New(func(s *driver.Session) ([]byte, *corestatus.DriverError) {
		return run(s, p, info)
	}), nil
}

func run(s *driver.Session, p Params, info registry.MethodInfo) ([]byte, *corestatus.DriverError) {
	switch info.Capability {
	case registry.LocallyAnswerable:
		return runLocallyAnswerable(s, p)
	case registry.Proofable:
		return runProofable(s, p, info)
	default:
		return nil, corestatus.New(corestatus.KindMethodNotSupported, "method %q is not supported", p.Method)
	}
}

// fetchConsensus retrieves the attested beacon header and the
// light-client update anchoring it, and requires the two to agree.
func fetchConsensus(s *driver.Session, p Params) (synccommittee.Header, synccommittee.Update, *corestatus.DriverError) {
	headerBytes, derr := s.Fetch(&request.DataRequest{
		Type:     request.TypeBeaconAPI,
		URL:      "/eth/v1/beacon/headers/head",
		Method:   request.VerbGET,
		Encoding: request.EncodingSSZ,
		ChainID:  p.ChainID,
	}, p.Pools.BeaconAPI)
	if derr != nil {
		return synccommittee.Header{}, synccommittee.Update{}, derr
	}
	header, err := synccommittee.DecodeHeader(headerBytes)
	if err != nil {
		return synccommittee.Header{}, synccommittee.Update{}, corestatus.New(corestatus.KindProofPlanFailure, "malformed beacon header: %v", err)
	}

	updateBytes, derr := s.Fetch(&request.DataRequest{
		Type:     request.TypeBeaconAPI,
		URL:      "/eth/v1/beacon/light_client/updates",
		Method:   request.VerbGET,
		Encoding: request.EncodingSSZ,
		ChainID:  p.ChainID,
	}, p.Pools.BeaconAPI)
	if derr != nil {
		return synccommittee.Header{}, synccommittee.Update{}, derr
	}
	update, err := synccommittee.DecodeUpdate(updateBytes)
	if err != nil {
		return synccommittee.Header{}, synccommittee.Update{}, corestatus.New(corestatus.KindProofPlanFailure, "malformed light-client update: %v", err)
	}
	if update.AttestedHeader != header {
		return synccommittee.Header{}, synccommittee.Update{}, corestatus.New(corestatus.KindProofPlanFailure, "light-client update does not attest the fetched header")
	}
	return header, update, nil
}

// runLocallyAnswerable derives the answer from the verified block header
// alone, with no execution witness.
func runLocallyAnswerable(s *driver.Session, p Params) ([]byte, *corestatus.DriverError) {
	header, update, derr := fetchConsensus(s, p)
	if derr != nil {
		return nil, derr
	}

	var answer []byte
	switch p.Method {
	case "eth_chainId":
		answer = []byte(fmt.Sprintf("0x%x", p.ChainID))
	default: // eth_blockNumber
		answer = []byte(fmt.Sprintf("0x%x", header.Slot))
	}

	sections := []proofblob.Section{
		{Type: proofblob.Header, Payload: proofblob.EncodeHeaderPayload(proofblob.HeaderPayload{ChainID: p.ChainID, Fork: proofblob.ForkDeneb})},
		{Type: proofblob.BeaconHeader, Payload: synccommittee.EncodeHeader(header)},
		{Type: proofblob.SyncSignature, Payload: synccommittee.EncodeUpdate(update)},
		{Type: proofblob.Answer, Payload: answer},
	}
	blob, err := proofblob.Encode(sections)
	if err != nil {
		return nil, corestatus.New(corestatus.KindProofPlanFailure, "%v", err)
	}
	return blob, nil
}

// runProofable assembles the full consensus-to-execution proof chain:
// the method's own answer, an eth_getProof witness, the attested beacon
// header with its light-client update, and the branch anchoring the
// execution state root to the attested state root. Every piece is
// cross-checked before serialization; inconsistencies surface as
// ProofPlanFailure rather than an unverifiable blob.
func runProofable(s *driver.Session, p Params, info registry.MethodInfo) ([]byte, *corestatus.DriverError) {
	var args []json.RawMessage
	if err := json.Unmarshal(p.Args, &args); err != nil {
		return nil, corestatus.New(corestatus.KindInvalidArgument, "params: %v", err)
	}

	answerBytes, derr := s.Fetch(&request.DataRequest{
		Type:     request.TypeJSONRPC,
		Method:   request.VerbPOST,
		Encoding: request.EncodingJSON,
		ChainID:  p.ChainID,
		Payload:  rpcPayload(p.Method, args),
	}, p.Pools.JSONRPC)
	if derr != nil {
		return nil, derr
	}

	witnessBytes, derr := s.Fetch(&request.DataRequest{
		Type:     request.TypeJSONRPC,
		Method:   request.VerbPOST,
		Encoding: request.EncodingJSON,
		ChainID:  p.ChainID,
		Payload:  rpcPayload("eth_getProof", proofArgs(info.Plan, args)),
	}, p.Pools.JSONRPC)
	if derr != nil {
		return nil, derr
	}
	w, err := triewitness.DecodeWitness(witnessBytes)
	if err != nil {
		return nil, corestatus.New(corestatus.KindProofPlanFailure, "malformed execution witness: %v", err)
	}

	header, update, derr := fetchConsensus(s, p)
	if derr != nil {
		return nil, derr
	}

	execBytes, derr := s.Fetch(&request.DataRequest{
		Type:     request.TypeBeaconAPI,
		URL:      "/eth/v1/beacon/states/head/execution_root_proof",
		Method:   request.VerbGET,
		Encoding: request.EncodingSSZ,
		ChainID:  p.ChainID,
	}, p.Pools.BeaconAPI)
	if derr != nil {
		return nil, derr
	}
	erp, err := sszproof.DecodeExecutionRootProof(execBytes)
	if err != nil {
		return nil, corestatus.New(corestatus.KindProofPlanFailure, "malformed execution root proof: %v", err)
	}
	if !erp.Verify(header.StateRoot) {
		return nil, corestatus.New(corestatus.KindProofPlanFailure, "execution root proof does not anchor to the attested state root")
	}

	acc, storageValue, err := triewitness.VerifyWitness(common.Hash(erp.ExecutionStateRoot), w)
	if err != nil {
		return nil, corestatus.New(corestatus.KindProofPlanFailure, "execution witness does not verify against the execution state root: %v", err)
	}
	switch p.Method {
	case "eth_getBalance":
		if !bytes.Equal(answerBytes, acc.Balance.Bytes()) {
			return nil, corestatus.New(corestatus.KindProofPlanFailure, "answer does not match the proven account balance")
		}
	case "eth_getStorageAt":
		if !bytes.Equal(answerBytes, storageValue) {
			return nil, corestatus.New(corestatus.KindProofPlanFailure, "answer does not match the proven storage value")
		}
	}

	sections := []proofblob.Section{
		{Type: proofblob.Header, Payload: proofblob.EncodeHeaderPayload(proofblob.HeaderPayload{ChainID: p.ChainID, Fork: proofblob.ForkDeneb})},
		{Type: proofblob.BeaconHeader, Payload: synccommittee.EncodeHeader(header)},
		{Type: proofblob.SyncSignature, Payload: synccommittee.EncodeUpdate(update)},
		{Type: proofblob.SSZBranch, Payload: erp.Encode()},
		{Type: proofblob.PatriciaWitness, Payload: w.Encode()},
		{Type: proofblob.Answer, Payload: answerBytes},
	}
	blob, encErr := proofblob.Encode(sections)
	if encErr != nil {
		return nil, corestatus.New(corestatus.KindProofPlanFailure, "%v", encErr)
	}
	return blob, nil
}

func rpcPayload(method string, args []json.RawMessage) []byte {
	payload, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  args,
	})
	return payload
}

// proofArgs builds the eth_getProof params [address, slots, blockTag]
// from the method's own params using the plan's argument positions.
func proofArgs(plan registry.Plan, args []json.RawMessage) []json.RawMessage {
	address := json.RawMessage(`null`)
	if plan.ParamAddressIndex >= 0 && plan.ParamAddressIndex < len(args) {
		address = args[plan.ParamAddressIndex]
	}
	slots := []json.RawMessage{}
	if plan.NeedsStorageProof && plan.ParamSlotIndex >= 0 && plan.ParamSlotIndex < len(args) {
		slots = append(slots, args[plan.ParamSlotIndex])
	}
	blockTag := json.RawMessage(`"latest"`)
	if plan.ParamBlockIndex >= 0 && plan.ParamBlockIndex < len(args) {
		blockTag = args[plan.ParamBlockIndex]
	}
	slotsRaw, _ := json.Marshal(slots)
	return []json.RawMessage{address, slotsRaw, blockTag}
}

// Package triewitness verifies Merkle-Patricia inclusion proofs over the
// Ethereum execution-layer state and storage tries, using go-ethereum's
// own trie.VerifyProof so the verification logic is byte-for-byte the
// same as a full node's. Transaction, receipt and logs-bloom tries are
// not covered.
package triewitness

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidWitness   = errors.New("triewitness: proof nodes do not compose to the claimed root")
	ErrAccountNotFound  = errors.New("triewitness: account not present under the claimed root")
	ErrMalformedAccount = errors.New("triewitness: account RLP is malformed")
)

// Account is the decoded state-trie leaf value: [nonce, balance,
// storageRoot, codeHash].
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	StorageRoot common.Hash
	CodeHash    []byte
}

type rlpAccount struct {
	Nonce    uint64
	Balance  *big.Int
	Root     common.Hash
	CodeHash []byte
}

// proofDB loads a flat list of RLP-encoded trie nodes into the
// keyed-by-hash reader trie.VerifyProof expects.
func proofDB(nodes [][]byte) (*memorydb.Database, error) {
	db := memorydb.New()
	for _, node := range nodes {
		hash := crypto.Keccak256(node)
		if err := db.Put(hash, node); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// VerifyAccount checks an eth_getProof-style accountProof against the
// claimed state root and decodes the account leaf on success. A
// malformed witness whose intermediate hashes do not compose to the
// claimed root produces ErrInvalidWitness, never a panic.
func VerifyAccount(stateRoot common.Hash, address common.Address, proofNodes [][]byte) (*Account, error) {
	db, err := proofDB(proofNodes)
	if err != nil {
		return nil, err
	}
	key := crypto.Keccak256(address.Bytes())

	value, err := trie.VerifyProof(stateRoot, key, db)
	if err != nil {
		return nil, ErrInvalidWitness
	}
	if value == nil {
		return nil, ErrAccountNotFound
	}

	var acc rlpAccount
	if err := rlp.DecodeBytes(value, &acc); err != nil {
		return nil, ErrMalformedAccount
	}

	balance, overflow := uint256.FromBig(acc.Balance)
	if overflow {
		return nil, ErrMalformedAccount
	}

	return &Account{
		Nonce:       acc.Nonce,
		Balance:     balance,
		StorageRoot: acc.Root,
		CodeHash:    acc.CodeHash,
	}, nil
}

// VerifyStorageSlot checks an eth_getProof-style storageProof entry
// against the account's storageRoot. A slot read always pairs an
// account proof with a storage trie proof rooted at account.storageRoot.
func VerifyStorageSlot(storageRoot common.Hash, slot common.Hash, proofNodes [][]byte) ([]byte, error) {
	db, err := proofDB(proofNodes)
	if err != nil {
		return nil, err
	}
	key := crypto.Keccak256(slot.Bytes())

	value, err := trie.VerifyProof(storageRoot, key, db)
	if err != nil {
		return nil, ErrInvalidWitness
	}
	if value == nil {
		// Absence is valid: an untouched slot is implicitly zero.
		return nil, nil
	}

	var raw []byte
	if err := rlp.DecodeBytes(value, &raw); err != nil {
		return nil, ErrMalformedAccount
	}
	return raw, nil
}

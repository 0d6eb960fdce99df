package triewitness

import (
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrMalformedWitness is returned when a serialized Witness cannot be
// parsed back out of its wire form.
var ErrMalformedWitness = errors.New("triewitness: malformed witness bytes")

// Witness bundles the account-proof (and, for storage reads, the
// storage-proof) nodes eth_getProof returns, in the flat form the
// PATRICIA_WITNESS proof blob section carries.
type Witness struct {
	Address      common.Address
	AccountProof [][]byte
	HasStorage   bool
	StorageSlot  common.Hash
	StorageProof [][]byte
}

// Encode renders a Witness as a flat, length-prefixed byte sequence.
func (w Witness) Encode() []byte {
	var buf []byte
	buf = append(buf, w.Address[:]...)
	buf = appendNodeList(buf, w.AccountProof)
	if w.HasStorage {
		buf = append(buf, 1)
		buf = append(buf, w.StorageSlot[:]...)
		buf = appendNodeList(buf, w.StorageProof)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// DecodeWitness is the inverse of Witness.Encode.
func DecodeWitness(b []byte) (Witness, error) {
	if len(b) < common.AddressLength+4 {
		return Witness{}, ErrMalformedWitness
	}
	var w Witness
	copy(w.Address[:], b[:common.AddressLength])
	off := common.AddressLength

	nodes, next, err := readNodeList(b, off)
	if err != nil {
		return Witness{}, err
	}
	w.AccountProof = nodes
	off = next

	if off >= len(b) {
		return Witness{}, ErrMalformedWitness
	}
	hasStorage := b[off]
	off++
	if hasStorage == 1 {
		if len(b) < off+common.HashLength {
			return Witness{}, ErrMalformedWitness
		}
		copy(w.StorageSlot[:], b[off:off+common.HashLength])
		off += common.HashLength
		nodes, _, err := readNodeList(b, off)
		if err != nil {
			return Witness{}, err
		}
		w.StorageProof = nodes
		w.HasStorage = true
	}
	return w, nil
}

func appendNodeList(buf []byte, nodes [][]byte) []byte {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(nodes)))
	buf = append(buf, countBuf[:]...)
	for _, n := range nodes {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(n)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, n...)
	}
	return buf
}

func readNodeList(b []byte, off int) ([][]byte, int, error) {
	if len(b) < off+4 {
		return nil, 0, ErrMalformedWitness
	}
	count := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// Each node costs at least its 4-byte length prefix, which bounds a
	// hostile count before any allocation.
	if count > (len(b)-off)/4 {
		return nil, 0, ErrMalformedWitness
	}
	nodes := make([][]byte, count)
	for i := 0; i < count; i++ {
		if len(b) < off+4 {
			return nil, 0, ErrMalformedWitness
		}
		nodeLen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if len(b) < off+nodeLen {
			return nil, 0, ErrMalformedWitness
		}
		node := make([]byte, nodeLen)
		copy(node, b[off:off+nodeLen])
		nodes[i] = node
		off += nodeLen
	}
	return nodes, off, nil
}

// VerifyWitness checks a Witness's account proof against stateRoot, and
// its storage proof (if present) against the resulting account's
// StorageRoot.
func VerifyWitness(stateRoot common.Hash, w Witness) (*Account, []byte, error) {
	acc, err := VerifyAccount(stateRoot, w.Address, w.AccountProof)
	if err != nil {
		return nil, nil, err
	}
	if !w.HasStorage {
		return acc, nil, nil
	}
	value, err := VerifyStorageSlot(acc.StorageRoot, w.StorageSlot, w.StorageProof)
	if err != nil {
		return nil, nil, err
	}
	return acc, value, nil
}

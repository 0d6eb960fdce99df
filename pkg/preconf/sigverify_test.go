package preconf

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestSequencerVerifierAcceptsSignedPayload(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sequencer := crypto.PubkeyToAddress(key.PublicKey)

	raw, err := SignPayload(10, []byte("block body"), key)
	require.NoError(t, err)

	verify := SequencerVerifier(sequencer)
	require.NoError(t, verify(&Payload{ChainID: 10, BlockNumber: 1, Raw: raw}))
}

func TestSequencerVerifierRejectsWrongSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	raw, err := SignPayload(10, []byte("block body"), other)
	require.NoError(t, err)

	verify := SequencerVerifier(crypto.PubkeyToAddress(key.PublicKey))
	require.ErrorIs(t, verify(&Payload{ChainID: 10, BlockNumber: 1, Raw: raw}), ErrWrongSequencer)
}

func TestSequencerVerifierRejectsTamperedBody(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sequencer := crypto.PubkeyToAddress(key.PublicKey)

	raw, err := SignPayload(10, []byte("block body"), key)
	require.NoError(t, err)
	raw[0] ^= 0xff

	err = SequencerVerifier(sequencer)(&Payload{ChainID: 10, BlockNumber: 1, Raw: raw})
	require.Error(t, err)
}

func TestSequencerVerifierRejectsShortPayload(t *testing.T) {
	verify := SequencerVerifier(common.Address{})
	require.ErrorIs(t, verify(&Payload{ChainID: 10, Raw: []byte("too short")}), ErrPayloadTooShort)
	require.ErrorIs(t, verify(nil), ErrPayloadNil)
}

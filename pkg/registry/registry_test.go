package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corpus-core/colibri-stateless/pkg/registry"
)

func TestDefaultClassifiesLocallyAnswerable(t *testing.T) {
	r := registry.Default()
	info, err := r.Classify("eth_blockNumber")
	require.NoError(t, err)
	require.Equal(t, registry.LocallyAnswerable, info.Capability)
}

func TestDefaultClassifiesProofableWithPlan(t *testing.T) {
	r := registry.Default()
	info, err := r.Classify("eth_getBalance")
	require.NoError(t, err)
	require.Equal(t, registry.Proofable, info.Capability)
	require.True(t, info.Plan.NeedsAccountProof)
	require.False(t, info.Plan.NeedsStorageProof)
	require.Equal(t, 0, info.Plan.ParamAddressIndex)
}

func TestGetStorageAtNeedsBothProofs(t *testing.T) {
	r := registry.Default()
	info, err := r.Classify("eth_getStorageAt")
	require.NoError(t, err)
	require.True(t, info.Plan.NeedsAccountProof)
	require.True(t, info.Plan.NeedsStorageProof)
	require.Equal(t, 1, info.Plan.ParamSlotIndex)
}

func TestUnknownMethodIsUnsupported(t *testing.T) {
	r := registry.Default()
	info, err := r.Classify("eth_sendRawTransaction")
	require.ErrorIs(t, err, registry.ErrUnknownMethod)
	require.Equal(t, registry.Unsupported, info.Capability)
}

func TestRegisterOverridesExisting(t *testing.T) {
	r := registry.New()
	r.Register(registry.MethodInfo{Name: "custom_method", Capability: registry.Unsupported})
	r.Register(registry.MethodInfo{Name: "custom_method", Capability: registry.LocallyAnswerable})
	info, err := r.Classify("custom_method")
	require.NoError(t, err)
	require.Equal(t, registry.LocallyAnswerable, info.Capability)
}

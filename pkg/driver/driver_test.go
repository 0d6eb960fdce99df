package driver_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corpus-core/colibri-stateless/pkg/corestatus"
	"github.com/corpus-core/colibri-stateless/pkg/driver"
	"github.com/corpus-core/colibri-stateless/pkg/request"
)

func TestDriverSuccessRoundTrip(t *testing.T) {
	d := driver.New(func(s *driver.Session) ([]byte, *corestatus.DriverError) {
		resp := s.EmitOne(&request.DataRequest{Type: request.TypeJSONRPC, URL: "eth_blockNumber"})
		if !resp.OK {
			return nil, corestatus.New(corestatus.KindServerPoolExhausted, "no response")
		}
		return resp.Bytes, nil
	})

	status := d.Step()
	require.Equal(t, corestatus.PhasePending, status.Phase)
	require.Len(t, status.Requests, 1)

	h := request.Handle{ReqPtr: status.Requests[0].ReqPtr, Generation: d.Generation()}
	require.True(t, d.SetResponse(h, []byte("0x10"), 0))

	status = d.Step()
	require.Equal(t, corestatus.PhaseSuccess, status.Phase)

	proof, ok := d.Proof()
	require.True(t, ok)
	require.Equal(t, []byte("0x10"), proof)
}

func TestStepWithUnresolvedRequestsDoesNotAdvance(t *testing.T) {
	d := driver.New(func(s *driver.Session) ([]byte, *corestatus.DriverError) {
		s.Emit([]*request.DataRequest{
			{Type: request.TypeBeaconAPI},
			{Type: request.TypeBeaconAPI},
		})
		return []byte("ok"), nil
	})

	first := d.Step()
	require.Equal(t, corestatus.PhasePending, first.Phase)
	require.Len(t, first.Requests, 2)

	// Resolve only one of the two outstanding requests.
	h := request.Handle{ReqPtr: first.Requests[0].ReqPtr, Generation: d.Generation()}
	d.SetResponse(h, []byte("partial"), 0)

	second := d.Step()
	require.Equal(t, corestatus.PhasePending, second.Phase)
	require.Len(t, second.Requests, 1, "only the unresolved request should remain")
}

func TestSetResponseTwiceIsRefused(t *testing.T) {
	d := driver.New(func(s *driver.Session) ([]byte, *corestatus.DriverError) {
		s.EmitOne(&request.DataRequest{Type: request.TypeJSONRPC})
		return []byte("done"), nil
	})

	status := d.Step()
	h := request.Handle{ReqPtr: status.Requests[0].ReqPtr, Generation: d.Generation()}

	require.True(t, d.SetResponse(h, []byte("first"), 0))
	require.False(t, d.SetResponse(h, []byte("second"), 0), "second set_response must be refused")
}

func TestStaleGenerationHandleIsRefused(t *testing.T) {
	d := driver.New(func(s *driver.Session) ([]byte, *corestatus.DriverError) {
		s.EmitOne(&request.DataRequest{Type: request.TypeJSONRPC})
		return []byte("done"), nil
	})

	status := d.Step()
	stale := request.Handle{ReqPtr: status.Requests[0].ReqPtr, Generation: d.Generation() + 1}
	require.False(t, d.SetResponse(stale, []byte("x"), 0))
}

func TestTerminatedDriverReturnsSameStatus(t *testing.T) {
	d := driver.New(func(s *driver.Session) ([]byte, *corestatus.DriverError) {
		return []byte("immediate"), nil
	})

	first := d.Step()
	require.Equal(t, corestatus.PhaseSuccess, first.Phase)
	second := d.Step()
	require.Equal(t, first, second)
}

func TestFetchRetriesWithMonotonicExcludeMaskThenExhausts(t *testing.T) {
	d := driver.New(func(s *driver.Session) ([]byte, *corestatus.DriverError) {
		_, derr := s.Fetch(&request.DataRequest{Type: request.TypeBeaconAPI}, 2)
		return nil, derr
	})

	status := d.Step()
	require.Equal(t, corestatus.PhasePending, status.Phase)
	h0 := request.Handle{ReqPtr: status.Requests[0].ReqPtr, Generation: d.Generation()}
	d.SetError(h0, "boom", 0)

	status = d.Step()
	require.Equal(t, corestatus.PhasePending, status.Phase)
	require.Equal(t, uint32(1), status.Requests[0].ExcludeMask)
	h1 := request.Handle{ReqPtr: status.Requests[0].ReqPtr, Generation: d.Generation()}
	d.SetError(h1, "boom again", 1)

	status = d.Step()
	require.Equal(t, corestatus.PhaseError, status.Phase)
	require.Equal(t, corestatus.KindServerPoolExhausted, status.Err.Kind)
}

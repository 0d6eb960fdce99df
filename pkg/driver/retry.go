package driver

import (
	"math/bits"

	"github.com/corpus-core/colibri-stateless/pkg/corestatus"
	"github.com/corpus-core/colibri-stateless/pkg/request"
)

// Fetch drives a single logical request to completion against poolSize
// configured candidates: on error the failing node index is added to the
// request's exclude mask and it is re-emitted; exclude_mask is
// monotonic across retries of one logical request within a driver
// lifetime. A request whose mask ends up covering every configured
// server surfaces ServerPoolExhausted.
func (s *Session) Fetch(base *request.DataRequest, poolSize int) ([]byte, *corestatus.DriverError) {
	if poolSize <= 0 {
		return nil, corestatus.New(corestatus.KindServerPoolExhausted, "no configured servers for %s", base.Type)
	}

	req := *base
	for attempts := 0; ; attempts++ {
		resp := s.EmitOne(&req)
		if resp.OK {
			return resp.Bytes, nil
		}

		if resp.NodeIndex >= 0 && resp.NodeIndex < 32 {
			req.ExcludeMask |= 1 << uint(resp.NodeIndex)
		}
		req.Handle = request.Handle{} // force a fresh ReqPtr on retry

		// A host that keeps reporting an unattributable failure still
		// exhausts the pool after one error per candidate.
		if bits.OnesCount32(req.ExcludeMask) >= poolSize || attempts+1 >= poolSize {
			return nil, corestatus.New(corestatus.KindServerPoolExhausted, "%s: %s", base.Type, resp.ErrMsg)
		}
	}
}

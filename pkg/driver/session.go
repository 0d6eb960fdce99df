package driver

import (
	"sync"

	"github.com/corpus-core/colibri-stateless/pkg/corestatus"
	"github.com/corpus-core/colibri-stateless/pkg/request"
)

// Session is the handle a Program uses to request external data. It is
// only ever touched from the program's own goroutine plus the owning
// Driver's Step/resolve calls, which are themselves mutually excluded by
// Driver.mu.
type Session struct {
	d    *Driver
	prog Program

	mu       sync.Mutex
	inflight map[uint64]*slot
}

type slot struct {
	req      *request.DataRequest
	resolved bool
	resp     request.Response
}

func newSession(d *Driver) *Session {
	return &Session{d: d, inflight: make(map[uint64]*slot)}
}

func (s *Session) run() {
	result, err := s.runProgram()
	s.d.fromProgram <- programMessage{result: result, err: err, done: true}
}

func (s *Session) runProgram() (result []byte, err *corestatus.DriverError) {
	defer func() {
		if r := recover(); r != nil {
			err = corestatus.New(corestatus.KindProofPlanFailure, "panic recovered: %v", r)
			result = nil
		}
	}()
	return s.prog(s)
}

// Emit is called from the program's goroutine. It hands a batch of
// requests to Step, then blocks until every one of them has been
// resolved or errored, returning the responses in request order.
func (s *Session) Emit(reqs []*request.DataRequest) []request.Response {
	if len(reqs) == 0 {
		return nil
	}
	for _, r := range reqs {
		r.Handle.Generation = s.d.generation
		if r.Handle.ReqPtr == 0 {
			r.Handle.ReqPtr = request.NextReqPtr()
		}
	}

	s.mu.Lock()
	for _, r := range reqs {
		s.inflight[r.Handle.ReqPtr] = &slot{req: r}
	}
	s.mu.Unlock()

	s.d.fromProgram <- programMessage{requests: reqs}
	<-s.d.toProgram

	out := make([]request.Response, len(reqs))
	s.mu.Lock()
	for i, r := range reqs {
		sl := s.inflight[r.Handle.ReqPtr]
		out[i] = sl.resp
		delete(s.inflight, r.Handle.ReqPtr)
	}
	s.mu.Unlock()
	return out
}

// EmitOne is the common case of Emit for a single logical request.
func (s *Session) EmitOne(r *request.DataRequest) request.Response {
	return s.Emit([]*request.DataRequest{r})[0]
}

func (s *Session) resolve(reqPtr uint64, resp request.Response) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.inflight[reqPtr]
	if !ok || sl.resolved {
		return false
	}
	sl.resolved = true
	sl.resp = resp
	return true
}

func (s *Session) hasUnresolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sl := range s.inflight {
		if !sl.resolved {
			return true
		}
	}
	return false
}

func (s *Session) setPending(reqs []*request.DataRequest) {
	// Requests already tracked via Emit; nothing further to record here.
	// Resolved entries are pruned from the reported view by pendingViews.
}

func (s *Session) pendingViews() []corestatus.RequestView {
	s.mu.Lock()
	defer s.mu.Unlock()
	views := make([]corestatus.RequestView, 0, len(s.inflight))
	for _, sl := range s.inflight {
		if sl.resolved {
			continue
		}
		views = append(views, corestatus.RequestView{
			ReqPtr:      sl.req.Handle.ReqPtr,
			URL:         sl.req.URL,
			Method:      sl.req.Method.String(),
			Type:        sl.req.Type.String(),
			ChainID:     sl.req.ChainID,
			Encoding:    sl.req.Encoding.String(),
			ExcludeMask: sl.req.ExcludeMask,
			Headers:     sl.req.Headers,
			Payload:     sl.req.Payload,
		})
	}
	return views
}

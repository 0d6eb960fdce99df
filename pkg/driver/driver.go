// Package driver implements the suspendable request/response engine
// shared by the prover and verifier. A
// Driver exposes a computation as a sequence of Step calls; the only
// effect visible to the caller is a batch of DataRequests to resolve.
//
// Internally each Driver runs its program on its own goroutine and
// communicates with the Step caller over two unbuffered channels, so
// the program body reads as straight-line code while every external
// fetch remains a well-defined suspension point.
package driver

import (
	"sync"
	"sync/atomic"

	"github.com/corpus-core/colibri-stateless/pkg/corestatus"
	"github.com/corpus-core/colibri-stateless/pkg/request"
)

// Program is the body a Driver runs. It receives a Session used to
// request data and must return either proof bytes (prover) / decoded
// result bytes (verifier) or a classified error. It must never panic;
// any panic is recovered and reported as a ProofPlanFailure so it
// cannot cross the core boundary.
type Program func(s *Session) ([]byte, *corestatus.DriverError)

var generationCounter atomic.Uint64

// Driver is not safe for concurrent Step invocations; it is
// safe to transfer ownership across threads between invocations, and
// multiple Drivers may run in parallel on disjoint state.
type Driver struct {
	mu         sync.Mutex
	generation uint64
	session    *Session

	toProgram   chan struct{}       // step() tells the program "responses are ready, resume"
	fromProgram chan programMessage // program tells step() "here is my next batch or my result"

	started    bool
	terminated bool
	destroyed  bool
	final      corestatus.Status
	result     []byte
}

type programMessage struct {
	requests []*request.DataRequest
	result   []byte
	err      *corestatus.DriverError
	done     bool
}

// New creates a Driver that will run prog when first stepped.
func New(prog Program) *Driver {
	d := &Driver{
		generation:  generationCounter.Add(1),
		toProgram:   make(chan struct{}),
		fromProgram: make(chan programMessage),
	}
	d.session = newSession(d)
	d.session.prog = prog
	return d
}

// Step runs the driver until its next suspension point. A Step on a
// terminated driver returns the terminal status again without
// re-running any work.
func (d *Driver) Step() corestatus.Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.terminated {
		return d.final
	}

	// A step that finds unresolved requests returns the same pending
	// set, possibly pruned of those already resolved, and does not
	// advance.
	if d.started && d.session.hasUnresolved() {
		return corestatus.Pending(d.session.pendingViews())
	}

	if !d.started {
		d.started = true
		go d.session.run()
	} else {
		d.toProgram <- struct{}{}
	}

	msg := <-d.fromProgram
	if msg.done {
		d.terminated = true
		d.result = msg.result
		if msg.err != nil {
			d.final = corestatus.Error(msg.err)
		} else {
			d.final = corestatus.Success()
		}
		return d.final
	}

	d.session.setPending(msg.requests)
	return corestatus.Pending(d.session.pendingViews())
}

// SetResponse records a successful response for an outstanding handle.
// Setting a slot twice, or a handle from a different driver generation,
// is refused and has no effect.
func (d *Driver) SetResponse(h request.Handle, bytes []byte, nodeIndex int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed || h.Generation != d.generation {
		return false
	}
	return d.session.resolve(h.ReqPtr, request.Response{OK: true, Bytes: bytes, NodeIndex: nodeIndex})
}

// SetError records a transport/server failure. It does not terminate
// the driver; retry policy lives in the program.
func (d *Driver) SetError(h request.Handle, message string, nodeIndex int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed || h.Generation != d.generation {
		return false
	}
	return d.session.resolve(h.ReqPtr, request.Response{OK: false, ErrMsg: message, NodeIndex: nodeIndex})
}

// Proof returns the bytes produced by a terminated, successful driver.
func (d *Driver) Proof() ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.terminated || d.final.Phase != corestatus.PhaseSuccess {
		return nil, false
	}
	return d.result, true
}

// Destroy is idempotent. Outstanding handles become invalid; the
// destroyed flag makes late SetResponse/SetError calls no-ops rather
// than use-after-free, and the generation stamp refuses handles issued
// by other drivers.
func (d *Driver) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
}

// Generation exposes the driver's handle-stamping generation, so a
// program composing requests can stamp its own handles.
func (d *Driver) Generation() uint64 { return d.generation }

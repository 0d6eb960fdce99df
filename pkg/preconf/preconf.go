// Package preconf implements the L2 preconf ingester side-channel: an
// optional, isolated subscriber that surfaces the latest
// sequencer-signed optimistic payload ahead of its canonical arrival on
// an OP-Stack L2. It writes to the shared store and the preconf file
// surface but never participates in proof generation or verification.
package preconf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/corpus-core/colibri-stateless/pkg/store"
)

var (
	ErrNoHTTPSource  = errors.New("preconf: no HTTP source configured")
	ErrPayloadNil    = errors.New("preconf: nil payload")
	ErrVerifyFailed  = errors.New("preconf: payload signature verification failed")
	ErrAlreadyClosed = errors.New("preconf: ingester already stopped")
)

// Config controls polling cadence and the escalation/recovery/cleanup
// thresholds.
type Config struct {
	ChainID uint64
	BaseDir string

	// PollInterval is how often the HTTP source is polled for a fresh
	// payload while in HTTPOnly or HTTPAndGossip mode.
	PollInterval time.Duration

	// GapThreshold is the number of unseen block numbers in the gap
	// window (gapWindow.MissingCount, at most the last 64 positions) that
	// escalates HTTPOnly to HTTPAndGossip.
	GapThreshold int

	// RecoveryThreshold is the run of consecutive successful HTTP
	// blocks that demotes HTTPAndGossip back to HTTPOnly.
	RecoveryThreshold int

	// FailureThreshold is the number of consecutive HTTP failures that
	// switches to GossipFallback and stops HTTP polling.
	FailureThreshold int

	// DedupSize bounds the recently-processed-block-number set.
	DedupSize int

	// TTL is how long a persisted .raw/.json file is kept before the
	// cleanup task removes it. Symlinks are never subject to TTL.
	TTL time.Duration

	// CleanupInterval is how often the TTL sweep runs.
	CleanupInterval time.Duration
}

// DefaultConfig returns the production thresholds: 50/50
// escalate/recover, a 200-entry dedup set.
func DefaultConfig(chainID uint64, baseDir string) Config {
	return Config{
		ChainID:           chainID,
		BaseDir:           baseDir,
		PollInterval:      2 * time.Second,
		GapThreshold:      50,
		RecoveryThreshold: 50,
		FailureThreshold:  10,
		DedupSize:         200,
		TTL:               24 * time.Hour,
		CleanupInterval:   time.Hour,
	}
}

// Mode names the ingester's current source posture.
type Mode int

const (
	ModeHTTPOnly Mode = iota
	ModeHTTPAndGossip
	ModeGossipFallback
)

func (m Mode) String() string {
	switch m {
	case ModeHTTPOnly:
		return "http_only"
	case ModeHTTPAndGossip:
		return "http_and_gossip"
	case ModeGossipFallback:
		return "gossip_fallback"
	default:
		return "unknown"
	}
}

// Payload is one sequencer-signed optimistic block payload.
type Payload struct {
	ChainID     uint64
	BlockNumber uint64
	Raw         []byte          // compressed+signed payload bytes
	Metadata    json.RawMessage // decoded metadata persisted alongside Raw
}

// HTTPSource polls a "latest" endpoint for the newest payload.
type HTTPSource interface {
	FetchLatest(ctx context.Context, chainID uint64) (*Payload, error)
}

// GossipSource subscribes to the P2P gossip mesh, pushing payloads onto
// out until ctx is canceled.
type GossipSource interface {
	Subscribe(ctx context.Context, chainID uint64, out chan<- *Payload) error
}

// Verifier decompresses and verifies a payload's sequencer signature
// before it is persisted.
type Verifier func(*Payload) error

// Ingester runs the preconf side-channel for one chain. All exported
// methods are safe for concurrent use.
type Ingester struct {
	cfg    Config
	store  store.Store
	http   HTTPSource
	gossip GossipSource
	verify Verifier
	log    *slog.Logger

	mu           sync.Mutex
	mode         Mode
	window       gapWindow
	dedup        *dedupSet
	consecOK     int
	consecErr    int
	latestNum    uint64
	preLatestNum uint64
	stopped      bool
	cancel       context.CancelFunc
}

// New creates an Ingester. verify may be nil to skip signature
// verification (e.g. in tests); store and http must not be nil.
func New(cfg Config, s store.Store, http HTTPSource, gossip GossipSource, verify Verifier) *Ingester {
	if cfg.GapThreshold <= 0 {
		cfg.GapThreshold = 50
	}
	if cfg.RecoveryThreshold <= 0 {
		cfg.RecoveryThreshold = 50
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = 200
	}
	return &Ingester{
		cfg:    cfg,
		store:  s,
		http:   http,
		gossip: gossip,
		verify: verify,
		log:    slog.Default(),
		dedup:  newDedupSet(cfg.DedupSize),
	}
}

// SetLogger replaces the ingester's logger. Call before Run.
func (ing *Ingester) SetLogger(l *slog.Logger) {
	if l != nil {
		ing.log = l
	}
}

// Mode returns the ingester's current source posture.
func (ing *Ingester) Mode() Mode {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.mode
}

// Run polls the HTTP source at cfg.PollInterval until ctx is canceled,
// processing each fresh payload and running the mode-escalation policy.
// It starts a parallel gossip subscription whenever the mode calls for
// it, and tears the subscription down again on demotion.
func (ing *Ingester) Run(ctx context.Context) error {
	if ing.http == nil {
		return ErrNoHTTPSource
	}
	ctx, cancel := context.WithCancel(ctx)
	ing.mu.Lock()
	ing.cancel = cancel
	ing.mu.Unlock()
	defer cancel()

	var gossipCh chan *Payload
	var gossipCancel context.CancelFunc

	ticker := time.NewTicker(ing.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if gossipCancel != nil {
				gossipCancel()
			}
			return ctx.Err()
		case p := <-gossipCh:
			ing.processPayload(p, false)
		case <-ticker.C:
			mode := ing.Mode()
			if mode == ModeGossipFallback {
				continue
			}
			payload, err := ing.http.FetchLatest(ctx, ing.cfg.ChainID)
			ing.recordHTTPResult(err == nil)
			if err == nil && payload != nil {
				ing.processPayload(payload, true)
			}
		}

		mode := ing.Mode()
		wantGossip := mode == ModeHTTPAndGossip || mode == ModeGossipFallback
		if wantGossip && gossipCh == nil && ing.gossip != nil {
			gossipCh = make(chan *Payload, 16)
			var gctx context.Context
			gctx, gossipCancel = context.WithCancel(ctx)
			ch := gossipCh
			go func() {
				_ = ing.gossip.Subscribe(gctx, ing.cfg.ChainID, ch)
			}()
		} else if !wantGossip && gossipCh != nil {
			gossipCancel()
			gossipCh = nil
			gossipCancel = nil
		}
	}
}

// Stop cancels a running Run loop. Idempotent.
func (ing *Ingester) Stop() {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if ing.cancel != nil {
		ing.cancel()
	}
	ing.stopped = true
}

// recordHTTPResult updates the consecutive success/failure counters.
// A run of transport failures reaching FailureThreshold switches to
// gossip-fallback and stops HTTP polling.
func (ing *Ingester) recordHTTPResult(ok bool) {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if ok {
		ing.consecErr = 0
		return
	}
	ing.consecErr++
	ing.consecOK = 0
	if ing.consecErr >= ing.cfg.FailureThreshold && ing.mode != ModeGossipFallback {
		ing.mode = ModeGossipFallback
		ing.log.Warn("preconf HTTP source failing, switching to gossip fallback", "chain", ing.cfg.ChainID, "consecutive_errors", ing.consecErr)
	}
}

// processPayload applies deduplication, persists the payload to the
// store and the file surface, refreshes the latest/pre_latest symlinks,
// and runs the gap-based escalation/recovery policy.
func (ing *Ingester) processPayload(p *Payload, fromHTTP bool) {
	if p == nil {
		return
	}
	ing.mu.Lock()
	if ing.dedup.SeenOrAdd(p.BlockNumber) {
		ing.mu.Unlock()
		return
	}
	ing.mu.Unlock()

	if ing.verify != nil {
		if err := ing.verify(p); err != nil {
			return
		}
	}

	if err := ing.persist(p); err != nil {
		return
	}

	ing.mu.Lock()
	defer ing.mu.Unlock()
	ing.window.Record(p.BlockNumber)

	if !fromHTTP {
		return
	}

	missing := ing.window.MissingCount()
	switch ing.mode {
	case ModeHTTPOnly:
		if missing >= ing.cfg.GapThreshold {
			ing.mode = ModeHTTPAndGossip
			ing.consecOK = 0
			ing.log.Warn("preconf gap detected, starting parallel gossip", "chain", ing.cfg.ChainID, "missing", missing)
		}
	case ModeHTTPAndGossip:
		ing.consecOK++
		if ing.consecOK >= ing.cfg.RecoveryThreshold {
			ing.mode = ModeHTTPOnly
			ing.consecOK = 0
			ing.log.Info("preconf HTTP source recovered, stopping gossip", "chain", ing.cfg.ChainID)
		}
	case ModeGossipFallback:
		ing.consecOK++
		if ing.consecOK >= ing.cfg.RecoveryThreshold {
			ing.mode = ModeHTTPOnly
			ing.consecOK = 0
			ing.consecErr = 0
			ing.log.Info("preconf HTTP source recovered, stopping gossip", "chain", ing.cfg.ChainID)
		}
	}
}

// persist writes the payload's raw bytes and metadata to the file
// surface, refreshes the latest/pre_latest symlinks, and records the
// highest block number in the store under a per-chain key. latest.raw
// always tracks the maximum block number seen and pre_latest.raw the
// second maximum, so a payload that arrives out of order never demotes
// a higher block.
func (ing *Ingester) persist(p *Payload) error {
	rawName, err := writePayloadFiles(ing.cfg.BaseDir, p)
	if err != nil {
		return err
	}

	ing.mu.Lock()
	defer ing.mu.Unlock()
	switch {
	case p.BlockNumber > ing.latestNum:
		if err := swapLatest(ing.cfg.BaseDir, rawName); err != nil {
			return err
		}
		ing.preLatestNum = ing.latestNum
		ing.latestNum = p.BlockNumber
	case p.BlockNumber > ing.preLatestNum:
		if err := retargetPreLatest(ing.cfg.BaseDir, rawName); err != nil {
			return err
		}
		ing.preLatestNum = p.BlockNumber
	}

	key := fmt.Sprintf("preconf_latest_%d", p.ChainID)
	return ing.store.Set(key, []byte(fmt.Sprintf("%d", ing.latestNum)))
}

// CleanupExpired runs the TTL sweep once.
// Callers typically invoke this from a periodic task at
// cfg.CleanupInterval.
func (ing *Ingester) CleanupExpired() error {
	return cleanupExpired(ing.cfg.BaseDir, ing.cfg.TTL, time.Now())
}

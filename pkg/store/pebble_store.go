package store

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

// PebbleStore is a crash-durable Store backed by CockroachDB's pebble
// LSM engine, the same storage engine go-ethereum-derived clients use
// for their state database.
type PebbleStore struct {
	db            *pebble.DB
	maxSyncStates uint
}

// OpenPebbleStore opens (creating if absent) a pebble database at dir.
func OpenPebbleStore(dir string, maxSyncStates uint) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	if maxSyncStates == 0 {
		maxSyncStates = 8
	}
	return &PebbleStore{db: db, maxSyncStates: maxSyncStates}, nil
}

func (p *PebbleStore) Get(key string) ([]byte, bool) {
	v, closer, err := p.db.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

func (p *PebbleStore) Set(key string, value []byte) error {
	return p.db.Set([]byte(key), value, pebble.Sync)
}

func (p *PebbleStore) Delete(key string) error {
	return p.db.Delete([]byte(key), pebble.Sync)
}

func (p *PebbleStore) MaxSyncStates() uint { return p.maxSyncStates }

// Close releases the underlying pebble database.
func (p *PebbleStore) Close() error {
	if p.db == nil {
		return errors.New("store: pebble store already closed")
	}
	err := p.db.Close()
	p.db = nil
	return err
}

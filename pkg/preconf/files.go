package preconf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	latestName    = "latest.raw"
	preLatestName = "pre_latest.raw"
)

// writePayloadFiles writes block_<chain>_<number>.raw and its sibling
// .json metadata file, both via write-to-temp-then-rename so a reader
// never observes a partially written file. It returns the raw file's
// base name for use as a symlink target.
func writePayloadFiles(dir string, p *Payload) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	rawName := fmt.Sprintf("block_%d_%d.raw", p.ChainID, p.BlockNumber)
	jsonName := fmt.Sprintf("block_%d_%d.json", p.ChainID, p.BlockNumber)

	if err := atomicWrite(filepath.Join(dir, rawName), p.Raw); err != nil {
		return "", err
	}

	meta := p.Metadata
	if meta == nil {
		meta, _ = json.Marshal(struct {
			ChainID     uint64 `json:"chain_id"`
			BlockNumber uint64 `json:"block_number"`
		}{p.ChainID, p.BlockNumber})
	}
	if err := atomicWrite(filepath.Join(dir, jsonName), meta); err != nil {
		return "", err
	}
	return rawName, nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// swapLatest atomically retargets latest.raw to newRawName, first
// retargeting pre_latest.raw to whatever latest.raw previously pointed
// at. Both retargets go through a temp symlink plus rename so a reader
// never observes a dangling or half-written link.
func swapLatest(dir, newRawName string) error {
	latestPath := filepath.Join(dir, latestName)
	preLatestPath := filepath.Join(dir, preLatestName)

	prevTarget, err := os.Readlink(latestPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if prevTarget != "" {
		if err := symlinkAtomic(prevTarget, preLatestPath); err != nil {
			return err
		}
	}
	return symlinkAtomic(newRawName, latestPath)
}

// retargetPreLatest atomically points pre_latest.raw at rawName without
// touching latest.raw, for payloads that arrive out of order.
func retargetPreLatest(dir, rawName string) error {
	return symlinkAtomic(rawName, filepath.Join(dir, preLatestName))
}

func symlinkAtomic(target, linkPath string) error {
	tmp := linkPath + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, linkPath)
}

// cleanupExpired removes block_*.raw/.json files older than ttl,
// skipping the latest.raw/pre_latest.raw symlinks regardless of age.
func cleanupExpired(dir string, ttl time.Duration, now time.Time) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "block_") {
			continue
		}
		if !strings.HasSuffix(name, ".raw") && !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > ttl {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
	return nil
}

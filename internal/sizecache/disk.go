package sizecache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

// schemaVersion is bumped whenever the serialized layout changes. A disk file
// carrying any other schema is treated as empty.
const schemaVersion = 1

// diskFileNameFormat embeds the schema version so incompatible files never
// collide.
const diskFileNameFormat = "sizes-v%d.gob.lz4"

// header guards the disk tier against reuse across incompatible writers.
type header struct {
	Schema         int
	RuntimeVersion string
	BundlerVersion string
}

// snapshot is the serialized form of the disk tier.
type snapshot struct {
	Header  header
	Entries map[string]importmodel.SizeResult
}

// diskStore is the on-disk tier: an lz4-framed gob snapshot of the full map,
// rewritten atomically after each store. The file may be renamed away and
// back mid-process; lookups re-read it whenever its identity changes.
type diskStore struct {
	mu     sync.Mutex
	path   string
	hdr    header
	logger *slog.Logger

	entries  map[string]importmodel.SizeResult
	loadedAt time.Time // mtime of the file at last load; zero when absent
	loadedSz int64
}

func newDiskStore(dir, bundlerVersion string, logger *slog.Logger) *diskStore {
	return &diskStore{
		path: filepath.Join(dir, fmt.Sprintf(diskFileNameFormat, schemaVersion)),
		hdr: header{
			Schema:         schemaVersion,
			RuntimeVersion: runtime.Version(),
			BundlerVersion: bundlerVersion,
		},
		logger:  logger,
		entries: map[string]importmodel.SizeResult{},
	}
}

func (d *diskStore) lookup(key string) (importmodel.SizeResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.refresh()

	res, ok := d.entries[key]

	return res, ok
}

func (d *diskStore) store(key string, res importmodel.SizeResult) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.refresh()
	d.entries[key] = res

	return d.write()
}

func (d *diskStore) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.refresh()

	return len(d.entries)
}

func (d *diskStore) remove() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries = map[string]importmodel.SizeResult{}
	d.loadedAt = time.Time{}
	d.loadedSz = 0

	err := os.Remove(d.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove disk cache: %w", err)
	}

	return nil
}

// refresh re-reads the disk file when its identity (mtime, size) differs from
// the last load. Callers hold d.mu.
func (d *diskStore) refresh() {
	info, err := os.Stat(d.path)
	if err != nil {
		if !d.loadedAt.IsZero() {
			// File vanished; keep serving the loaded entries but note the
			// absence so a reappearing file is picked up.
			d.loadedAt = time.Time{}
			d.loadedSz = 0
		}

		return
	}

	if info.ModTime().Equal(d.loadedAt) && info.Size() == d.loadedSz {
		return
	}

	loaded, err := d.read()
	if err != nil {
		d.logger.Warn("discarding unreadable size cache", "path", d.path, "error", err)

		loaded = map[string]importmodel.SizeResult{}
	}

	// Merge so entries stored this process survive an older on-disk file.
	maps.Copy(loaded, d.entries)
	d.entries = loaded
	d.loadedAt = info.ModTime()
	d.loadedSz = info.Size()
}

func (d *diskStore) read() (map[string]importmodel.SizeResult, error) {
	file, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("open disk cache: %w", err)
	}
	defer file.Close()

	var snap snapshot

	if err := gob.NewDecoder(lz4.NewReader(file)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode disk cache: %w", err)
	}

	if snap.Header != d.hdr {
		d.logger.Debug("size cache version mismatch, starting empty",
			"path", d.path, "found", snap.Header, "want", d.hdr)

		return map[string]importmodel.SizeResult{}, nil
	}

	if snap.Entries == nil {
		snap.Entries = map[string]importmodel.SizeResult{}
	}

	return snap.Entries, nil
}

// write serializes the full map to a temp file and renames it into place so
// concurrent readers never observe a torn file. Callers hold d.mu.
func (d *diskStore) write() error {
	dir := filepath.Dir(d.path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "sizes-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}

	snap := snapshot{Header: d.hdr, Entries: d.entries}

	lzw := lz4.NewWriter(tmp)

	encErr := gob.NewEncoder(lzw).Encode(snap)
	if encErr == nil {
		encErr = lzw.Close()
	}

	closeErr := tmp.Close()

	if encErr != nil || closeErr != nil {
		os.Remove(tmp.Name())

		if encErr != nil {
			return fmt.Errorf("encode disk cache: %w", encErr)
		}

		return fmt.Errorf("flush disk cache: %w", closeErr)
	}

	if err := os.Rename(tmp.Name(), d.path); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("replace disk cache: %w", err)
	}

	if info, err := os.Stat(d.path); err == nil {
		d.loadedAt = info.ModTime()
		d.loadedSz = info.Size()
	}

	return nil
}

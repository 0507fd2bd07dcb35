// Package debounce supersedes stale in-flight requests per source file.
//
// Editor buffers change on every keystroke; without supersession, stale
// bundles would pile up and deliver obsolete overlays.
package debounce

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sync"

	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

// Fingerprint is an order-independent summary of the canonical import
// strings extracted from a source buffer.
type Fingerprint string

// FingerprintOf hashes the multiset of canonical import strings. Two buffers
// yielding the same imports in any order produce the same fingerprint.
func FingerprintOf(canonical []string) Fingerprint {
	sorted := slices.Clone(canonical)
	slices.Sort(sorted)

	h := sha256.New()

	for _, s := range sorted {
		h.Write([]byte(s))
		h.Write([]byte{'\n'})
	}

	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// Registry maps file names to their in-flight request. Beginning a request
// for a file with a different fingerprint cancels the prior request with a
// DebounceError cause. Equal fingerprints coexist; the prior request runs to
// completion and the newer one is typically served from cache.
type Registry struct {
	mu       sync.Mutex
	inflight map[string]*Ticket
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{inflight: make(map[string]*Ticket)}
}

// Ticket tracks one registered request until its terminal emission.
type Ticket struct {
	registry    *Registry
	fileName    string
	fingerprint Fingerprint
	cancel      context.CancelCauseFunc
}

// Begin registers a request and returns its cancellable context. The caller
// must invoke Ticket.Done on every exit path.
func (r *Registry) Begin(ctx context.Context, fileName string, fp Fingerprint) (context.Context, *Ticket) {
	reqCtx, cancel := context.WithCancelCause(ctx)

	ticket := &Ticket{
		registry:    r,
		fileName:    fileName,
		fingerprint: fp,
		cancel:      cancel,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.inflight[fileName]; ok && prior.fingerprint != fp {
		prior.cancel(&importmodel.DebounceError{FileName: fileName})
	}

	r.inflight[fileName] = ticket

	return reqCtx, ticket
}

// Done releases the ticket: the request's registry slot is freed if it is
// still the current one, and its context is released.
func (t *Ticket) Done() {
	t.registry.mu.Lock()

	if t.registry.inflight[t.fileName] == t {
		delete(t.registry.inflight, t.fileName)
	}

	t.registry.mu.Unlock()

	t.cancel(nil)
}

// CancelAll cancels every in-flight request. Used by process teardown.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for fileName, ticket := range r.inflight {
		ticket.cancel(&importmodel.DebounceError{FileName: fileName})
		delete(r.inflight, fileName)
	}
}

// Len reports the number of in-flight requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.inflight)
}

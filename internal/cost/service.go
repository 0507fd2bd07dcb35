// Package cost orchestrates extraction, resolution, caching, and sizing of
// import declarations under interactive load.
package cost

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/importcost/internal/debounce"
	"github.com/Sumatoshi-tech/importcost/internal/extract"
	"github.com/Sumatoshi-tech/importcost/internal/observability"
	"github.com/Sumatoshi-tech/importcost/internal/resolve"
	"github.com/Sumatoshi-tech/importcost/internal/sizecache"
	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

// Sizer measures a single import declaration against its resolved package.
type Sizer interface {
	Size(ctx context.Context, decl importmodel.Declaration, pkg importmodel.Package) (importmodel.SizeResult, error)
	Cleanup() error
}

// Config controls one request.
type Config struct {
	// Concurrent parallelizes per-import sizer invocations.
	Concurrent bool

	// MaxCallTime bounds a single sizer invocation. Zero or negative means
	// unbounded. Expiry is non-fatal: the entry is reported with a
	// TimeoutError and the request still completes.
	MaxCallTime time.Duration
}

// ServiceConfig holds the collaborators of a Service.
type ServiceConfig struct {
	Cache   *sizecache.Cache
	Sizer   Sizer
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Service is the public entry point of the pipeline. One Service is shared
// process-wide; its debounce registry interlocks requests per file.
type Service struct {
	extractor *extract.Extractor
	resolver  *resolve.Resolver
	cache     *sizecache.Cache
	sizer     Sizer
	registry  *debounce.Registry
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		extractor: extract.New(),
		resolver:  resolve.New(logger),
		cache:     cfg.Cache,
		sizer:     cfg.Sizer,
		registry:  debounce.NewRegistry(),
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// ImportCost analyzes one source buffer and returns its lifecycle stream:
// start, one calculated per entry, then done or error. The returned emitter
// must be drained. A later call for the same fileName with a different
// import fingerprint supersedes this one with a DebounceError.
func (s *Service) ImportCost(ctx context.Context, fileName, source string, language importmodel.Language, cfg Config) *Emitter {
	em := newEmitter()

	go s.run(ctx, em, fileName, source, language, cfg)

	return em
}

// ClearSizeCache empties the in-memory size cache. Disk state is untouched.
func (s *Service) ClearSizeCache() {
	s.cache.Clear()
}

// Cleanup cancels all in-flight requests and flushes ephemeral directories.
func (s *Service) Cleanup() {
	s.registry.CancelAll()

	if err := s.sizer.Cleanup(); err != nil {
		s.logger.Warn("sizer cleanup failed", "error", err)
	}
}

// CacheStats reports size cache effectiveness counters.
func (s *Service) CacheStats() sizecache.Stats {
	return s.cache.Stats()
}

// job is one distinct sizing unit: a cache key plus the entry indexes that
// share its result. Duplicate import lines coalesce into one bundler call.
type job struct {
	decl    importmodel.Declaration
	pkg     importmodel.Package
	key     sizecache.Key
	indexes []int
}

func (s *Service) run(ctx context.Context, em *Emitter, fileName, source string, language importmodel.Language, cfg Config) {
	defer em.close()

	if !language.Known() {
		em.done([]importmodel.Entry{})

		return
	}

	untrack := s.metrics.TrackInflight()
	defer untrack()

	decls, err := s.extractor.Extract(fileName, source, language)
	if err != nil {
		s.metrics.RecordRequest(observability.StatusError)
		em.fail(err)

		return
	}

	entries, jobs, canonical := s.resolveAll(decls)

	reqCtx, ticket := s.registry.Begin(ctx, fileName, debounce.FingerprintOf(canonical))
	defer ticket.Done()

	em.start(entries)

	s.sizeAll(reqCtx, em, entries, jobs, cfg)

	if err := reqCtx.Err(); err != nil {
		cause := context.Cause(reqCtx)

		var debounced *importmodel.DebounceError
		if errors.As(cause, &debounced) {
			s.metrics.RecordRequest(observability.StatusDebounced)
		} else {
			s.metrics.RecordRequest(observability.StatusError)
		}

		em.fail(cause)

		return
	}

	s.metrics.RecordRequest(observability.StatusOK)
	em.done(entries)
}

// resolveAll resolves each declaration, dropping the ones that are not
// installed, and groups the survivors by cache key. The canonical strings of
// every extracted declaration feed the fingerprint, resolved or not.
func (s *Service) resolveAll(decls []importmodel.Declaration) ([]importmodel.Entry, []*job, []string) {
	entries := make([]importmodel.Entry, 0, len(decls))
	canonical := make([]string, 0, len(decls))
	jobsByKey := make(map[sizecache.Key]*job)

	var jobs []*job

	for _, decl := range decls {
		canonical = append(canonical, decl.String)

		pkg := s.resolver.Resolve(decl)
		if pkg == nil {
			s.logger.Debug("import not installed", "name", decl.Name, "file", decl.FileName)

			continue
		}

		idx := len(entries)
		entries = append(entries, importmodel.Entry{
			Name:   decl.Name,
			Line:   decl.Line,
			String: decl.String,
		})

		key := sizecache.Key{Package: pkg.Name, Version: pkg.Version, Import: decl.String}

		if existing, ok := jobsByKey[key]; ok {
			existing.indexes = append(existing.indexes, idx)

			continue
		}

		j := &job{decl: decl, pkg: *pkg, key: key, indexes: []int{idx}}
		jobs = append(jobs, j)
		jobsByKey[key] = j
	}

	return entries, jobs, canonical
}

// sizeAll resolves every job from cache or the sizer, serially or
// concurrently per config. Jobs write disjoint entry indexes, so concurrent
// completion never races on the shared slice.
func (s *Service) sizeAll(ctx context.Context, em *Emitter, entries []importmodel.Entry, jobs []*job, cfg Config) {
	if !cfg.Concurrent {
		for _, j := range jobs {
			s.sizeOne(ctx, em, entries, j, cfg)
		}

		return
	}

	var wg sync.WaitGroup

	for _, j := range jobs {
		wg.Add(1)

		go func(j *job) {
			defer wg.Done()
			s.sizeOne(ctx, em, entries, j, cfg)
		}(j)
	}

	wg.Wait()
}

func (s *Service) sizeOne(ctx context.Context, em *Emitter, entries []importmodel.Entry, j *job, cfg Config) {
	if ctx.Err() != nil {
		return
	}

	if res, ok := s.cache.Get(j.key); ok {
		s.metrics.RecordCacheLookup(true)
		s.finishJob(ctx, em, entries, j, res, nil, observability.OutcomeCached)

		return
	}

	s.metrics.RecordCacheLookup(false)

	callCtx := ctx

	if cfg.MaxCallTime > 0 {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(ctx, cfg.MaxCallTime)
		defer cancel()
	}

	started := time.Now()
	res, err := s.sizer.Size(callCtx, j.decl, j.pkg)
	s.metrics.ObserveSizerDuration(time.Since(started))

	switch {
	case err == nil:
		s.cache.Put(j.key, res)
		s.finishJob(ctx, em, entries, j, res, nil, observability.OutcomeSized)
	case isTimeout(err):
		s.finishJob(ctx, em, entries, j, importmodel.SizeResult{}, err, observability.OutcomeTimeout)
	case isBundleFailure(err):
		// Soft failure: reported with zero sizes, not retried, not fatal.
		s.logger.Warn("bundling failed", "name", j.decl.Name, "error", err)
		s.finishJob(ctx, em, entries, j, importmodel.SizeResult{}, nil, observability.OutcomeFailed)
	default:
		if ctx.Err() != nil {
			// Canceled; the request-level check after sizeAll decides how it
			// surfaces.
			s.logger.Debug("sizing canceled", "name", j.decl.Name, "error", err)

			return
		}

		// Infrastructure failure on this entry only; the request proceeds.
		s.logger.Warn("sizing failed", "name", j.decl.Name, "error", err)
		s.finishJob(ctx, em, entries, j, importmodel.SizeResult{}, err, observability.OutcomeFailed)
	}
}

// finishJob applies one result to every entry sharing the cache key and
// emits their calculated events, unless the request was canceled meanwhile.
func (s *Service) finishJob(ctx context.Context, em *Emitter, entries []importmodel.Entry, j *job, res importmodel.SizeResult, entryErr error, outcome string) {
	if ctx.Err() != nil {
		return
	}

	s.metrics.RecordEntry(outcome)

	for _, idx := range j.indexes {
		entries[idx].Size = res.Size
		entries[idx].Gzip = res.Gzip
		entries[idx].Error = entryErr

		em.calculated(entries[idx])
	}
}

func isTimeout(err error) bool {
	var timeout *importmodel.TimeoutError

	return errors.As(err, &timeout)
}

func isBundleFailure(err error) bool {
	var bundleErr *importmodel.BundleError

	return errors.As(err, &bundleErr)
}

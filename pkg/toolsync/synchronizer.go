package toolsync

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/harun/toolserver/internal/observability"
	"github.com/harun/toolserver/internal/tracing"
	"github.com/harun/toolserver/pkg/embedding"
	"github.com/harun/toolserver/pkg/objectstore"
)

const defaultFetchConcurrency = 4

// Config configures a Synchronizer.
type Config struct {
	// Bucket is the listed bucket; empty when the store has no buckets
	Bucket           string
	Prefix           string
	Extension        string
	FetchConcurrency int
}

// Report summarizes one reconciliation cycle.
type Report struct {
	CycleID  string            `json:"cycleId"`
	Listed   int               `json:"listed"`
	Added    []string          `json:"added"`
	Skipped  []string          `json:"skipped"`
	Deleted  []string          `json:"deleted"`
	Failed   map[string]string `json:"failed"`
	Duration time.Duration     `json:"duration"`
}

// Synchronizer keeps the script tools in line with an object-store prefix.
type Synchronizer struct {
	store    objectstore.Store
	embedder *embedding.Embedder
	config   Config

	// one cycle at a time
	mu sync.Mutex
}

// New creates a synchronizer
func New(store objectstore.Store, embedder *embedding.Embedder, config Config) *Synchronizer {
	if config.Extension == "" {
		config.Extension = embedding.ScriptExtension
	}
	if config.FetchConcurrency <= 0 {
		config.FetchConcurrency = defaultFetchConcurrency
	}
	return &Synchronizer{store: store, embedder: embedder, config: config}
}

// Reconcile runs one cycle: list the prefix, embed new or newer scripts and
// evict scripts whose object disappeared. A failing candidate is reported and
// skipped; only an incomplete listing fails the cycle, before any change.
func (s *Synchronizer) Reconcile(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = tracing.NewCycleContext(ctx)
	ctx, span := tracing.StartSpan(ctx, "toolsync.Reconcile", attribute.String("prefix", s.config.Prefix))
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	start := time.Now()
	report := &Report{CycleID: tracing.GetCycleID(ctx), Failed: map[string]string{}}

	objects, err := objectstore.ListAll(ctx, s.store, s.config.Prefix)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing incomplete")
		observability.RecordSyncCycle(time.Since(start), 0, false)
		logger.Error().Err(err).Msg("Sync cycle aborted")
		return nil, err
	}
	report.Listed = len(objects)

	registry := s.embedder.Registry()
	additions, deletions := Diff(objects, s.config.Extension, registry.Has, s.embedder.Tracked())

	fetched := s.fetchAll(ctx, additions)
	for i, candidate := range additions {
		if fetched[i].err != nil {
			report.Failed[candidate.Name] = fetched[i].err.Error()
			logger.Error().Err(fetched[i].err).Str("tool", candidate.Name).Str("key", candidate.Key).Msg("Failed to fetch script")
			continue
		}

		err := s.embedder.Embed(ctx, candidate.Name, string(fetched[i].obj.Content), candidate.LastModified)
		switch {
		case errors.Is(err, embedding.ErrNotNewer):
			report.Skipped = append(report.Skipped, candidate.Name)
		case err != nil:
			report.Failed[candidate.Name] = err.Error()
		default:
			report.Added = append(report.Added, candidate.Name)
		}
	}

	for _, name := range deletions {
		if s.embedder.Evict(ctx, name) {
			report.Deleted = append(report.Deleted, name)
		}
	}

	report.Duration = time.Since(start)
	observability.RecordSyncCycle(report.Duration, report.Listed, true)
	span.SetAttributes(
		attribute.Int("sync.listed", report.Listed),
		attribute.Int("sync.added", len(report.Added)),
		attribute.Int("sync.deleted", len(report.Deleted)),
		attribute.Int("sync.failed", len(report.Failed)),
	)

	logger.Info().
		Int("listed", report.Listed).
		Strs("added", report.Added).
		Strs("deleted", report.Deleted).
		Int("failed", len(report.Failed)).
		Dur("duration", report.Duration).
		Msg("Sync cycle completed")

	return report, nil
}

type fetchResult struct {
	obj *objectstore.Object
	err error
}

// fetchAll fetches candidates concurrently. Failures stay per candidate.
func (s *Synchronizer) fetchAll(ctx context.Context, candidates []Candidate) []fetchResult {
	results := make([]fetchResult, len(candidates))

	var g errgroup.Group
	g.SetLimit(s.config.FetchConcurrency)
	for i, candidate := range candidates {
		g.Go(func() error {
			obj, err := s.store.Get(ctx, objectstore.Ref{Key: candidate.Key})
			if err != nil {
				err = &embedding.EmbedError{Name: candidate.Name, Stage: embedding.StageFetch, Err: err}
			}
			results[i] = fetchResult{obj: obj, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// EmbedObjects fetches and embeds the given objects. Unlike a cycle, the first
// fetch or embed failure fails the whole call. Objects covered by the listing
// are tracked and left alone when not newer than the embedded version; any
// other object is embedded untracked so later cycles keep it.
func (s *Synchronizer) EmbedObjects(ctx context.Context, refs []objectstore.Ref) error {
	objects := make([]*objectstore.Object, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.FetchConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			obj, err := s.store.Get(gctx, ref)
			if err != nil {
				return &embedding.EmbedError{Name: embedding.ToolName(ref.Key), Stage: embedding.StageFetch, Err: err}
			}
			objects[i] = obj
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, obj := range objects {
		name := embedding.ToolName(refs[i].Key)
		var err error
		if s.listed(refs[i]) {
			err = s.embedder.Embed(ctx, name, string(obj.Content), obj.LastModified)
		} else {
			err = s.embedder.EmbedUntracked(ctx, name, string(obj.Content))
		}
		if err != nil && !errors.Is(err, embedding.ErrNotNewer) {
			return fmt.Errorf("failed to embed %s: %w", refs[i].Key, err)
		}
	}

	log.Info().Int("objects", len(refs)).Msg("Embedded objects on request")
	return nil
}

// listed reports whether a cycle's listing would contain ref.
func (s *Synchronizer) listed(ref objectstore.Ref) bool {
	if ref.Bucket != "" && s.config.Bucket != "" && ref.Bucket != s.config.Bucket {
		return false
	}
	return strings.HasPrefix(ref.Key, s.config.Prefix) && path.Ext(ref.Key) == s.config.Extension
}

package usecases

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openschoolmap/georesolver/internal/core/domain"
	"github.com/openschoolmap/georesolver/internal/core/ports"
	"github.com/openschoolmap/georesolver/internal/pkg/metrics"
)

// PipelineOptions tunes the batch pipeline. Zero values select defaults.
type PipelineOptions struct {
	Workers      int           // resolution workers; default NumCPU-1, min 1
	BatchSize    int           // channel buffering between stages; default 100
	SaveEvery    int           // save after this many new records; default 100
	SaveInterval time.Duration // save at least this often while work is pending; default 60s
}

func (o *PipelineOptions) defaults() {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU() - 1
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.SaveEvery <= 0 {
		o.SaveEvery = 100
	}
	if o.SaveInterval <= 0 {
		o.SaveInterval = 60 * time.Second
	}
}

// PipelineService drives checkpointed batch resolution: a feeder goroutine
// streams the input, a worker pool resolves, and the single writer loop owns
// the checkpoint map and its save cadence.
type PipelineService struct {
	resolver *ResolverService
	store    ports.CheckpointStore
	events   ports.EventPublisher
	opts     PipelineOptions
}

// NewPipelineService creates a pipeline. events may be nil.
func NewPipelineService(resolver *ResolverService, store ports.CheckpointStore, events ports.EventPublisher, opts PipelineOptions) *PipelineService {
	opts.defaults()
	return &PipelineService{resolver: resolver, store: store, events: events, opts: opts}
}

type resolvedRecord struct {
	id  string
	rec domain.ResolutionRecord
}

// Run processes source until it is exhausted or ctx is cancelled. Records
// already in the checkpoint are skipped, so an interrupted run resumes where
// it left off. A terminal save always happens before returning; its failure
// is the only error Run reports. Cancellation itself is not an error: the
// run ends cleanly with everything resolved so far on disk.
func (p *PipelineService) Run(ctx context.Context, source ports.RecordSource) (domain.PipelineProgress, error) {
	cp, err := p.store.Load(ctx)
	if err != nil {
		slog.Warn("could not load prior checkpoint, starting fresh", "path", p.store.Path(), "error", err)
		cp = domain.Checkpoint{}
	}

	// the feeder owns this set; the writer owns cp itself
	done := make(map[string]struct{}, len(cp))
	for id := range cp {
		done[id] = struct{}{}
	}

	slog.Info("pipeline starting",
		"checkpoint", p.store.Path(),
		"prior_records", len(cp),
		"workers", p.opts.Workers,
	)

	jobs := make(chan domain.InputRecord, p.opts.BatchSize)
	results := make(chan resolvedRecord, p.opts.BatchSize)

	var seen, skipped atomic.Int64

	// feeder: stream the source, drop what needs no work
	go func() {
		defer close(jobs)
		for {
			rec, err := source.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					slog.Error("input stream broken, finishing what was read", "error", err)
				}
				return
			}
			seen.Add(1)

			if _, ok := done[rec.ID]; ok {
				skipped.Add(1)
				metrics.RecordsProcessed.WithLabelValues("skipped").Inc()
				continue
			}
			done[rec.ID] = struct{}{}

			if rec.Coord == nil || !rec.Coord.Valid() {
				skipped.Add(1)
				metrics.RecordsProcessed.WithLabelValues("invalid").Inc()
				slog.Warn("skipping record without usable coordinates", "id", rec.ID, "name", rec.Name)
				continue
			}

			select {
			case jobs <- *rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	// workers: resolve and hand results to the writer. On cancellation,
	// queued jobs are abandoned but a record already being resolved runs to
	// completion at full quality, so no degraded address gets persisted.
	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				out := resolvedRecord{
					id: rec.ID,
					rec: domain.ResolutionRecord{
						Name:       rec.Name,
						Coordinate: rec.Coord,
						Address:    p.resolver.Resolve(context.WithoutCancel(ctx), *rec.Coord),
					},
				}
				select {
				case results <- out:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// writer: single owner of the checkpoint and the save cadence
	ticker := time.NewTicker(p.opts.SaveInterval)
	defer ticker.Stop()

	resolved := 0
	pending := 0
	lastSave := time.Now()

	snapshot := func() domain.PipelineProgress {
		return domain.PipelineProgress{
			Seen:     int(seen.Load()),
			Resolved: resolved,
			Skipped:  int(skipped.Load()),
			Records:  len(cp),
		}
	}

	save := func() error {
		if err := p.store.Save(ctx, cp); err != nil {
			// keep counting; unsaved records stay in memory for the next try
			metrics.CheckpointSaves.WithLabelValues("error").Inc()
			slog.Error("checkpoint save failed", "path", p.store.Path(), "error", err)
			return err
		}
		metrics.CheckpointSaves.WithLabelValues("ok").Inc()
		metrics.CheckpointRecords.Set(float64(len(cp)))
		pending = 0
		lastSave = time.Now()
		slog.Info("checkpoint saved", "path", p.store.Path(), "records", len(cp))

		if p.events != nil {
			if err := p.events.PublishCheckpointSaved(ctx, domain.CheckpointSaved{
				Path:    p.store.Path(),
				Records: len(cp),
				SavedAt: time.Now(),
			}); err != nil {
				slog.Debug("checkpoint event publish failed", "error", err)
			}
			if err := p.events.PublishProgress(ctx, snapshot()); err != nil {
				slog.Debug("progress event publish failed", "error", err)
			}
		}
		return nil
	}

	for {
		select {
		case out, ok := <-results:
			if !ok {
				// drained; one terminal save settles everything
				saveErr := save()
				progress := snapshot()
				slog.Info("pipeline finished",
					"seen", progress.Seen,
					"resolved", progress.Resolved,
					"skipped", progress.Skipped,
					"records", progress.Records,
				)
				return progress, saveErr
			}
			cp[out.id] = out.rec
			resolved++
			pending++
			metrics.RecordsProcessed.WithLabelValues("resolved").Inc()
			if pending >= p.opts.SaveEvery {
				_ = save()
			}

		case <-ticker.C:
			if pending > 0 && time.Since(lastSave) >= p.opts.SaveInterval {
				_ = save()
			}
		}
	}
}

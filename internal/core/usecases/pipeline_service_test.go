package usecases_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/openschoolmap/georesolver/internal/core/domain"
	"github.com/openschoolmap/georesolver/internal/core/usecases"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockCheckpointStore struct {
	mu      sync.Mutex
	initial domain.Checkpoint
	loadErr error
	saveErr error
	saves   []domain.Checkpoint
	path    string
}

func (m *mockCheckpointStore) Load(ctx context.Context) (domain.Checkpoint, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.initial == nil {
		return domain.Checkpoint{}, nil
	}
	return m.initial, nil
}

func (m *mockCheckpointStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// snapshot: the pipeline keeps mutating the same map after Save returns
	clone := make(domain.Checkpoint, len(cp))
	for id, rec := range cp {
		clone[id] = rec
	}
	m.saves = append(m.saves, clone)
	return m.saveErr
}

func (m *mockCheckpointStore) Path() string {
	if m.path != "" {
		return m.path
	}
	return "resolved.json"
}

func (m *mockCheckpointStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func (m *mockCheckpointStore) lastSave() domain.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return nil
	}
	return m.saves[len(m.saves)-1]
}

func (m *mockCheckpointStore) lastSaveLen() int {
	return len(m.lastSave())
}

type sliceSource struct {
	recs   []*domain.InputRecord
	i      int
	closed bool
}

func (s *sliceSource) Next() (*domain.InputRecord, error) {
	if s.i >= len(s.recs) {
		return nil, io.EOF
	}
	rec := s.recs[s.i]
	s.i++
	return rec, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

// blockingSource hands out records only when the test pushes them, so the
// pipeline can be caught mid-flight.
type blockingSource struct {
	ch   chan *domain.InputRecord
	done chan struct{}
	once sync.Once
}

func newBlockingSource() *blockingSource {
	return &blockingSource{ch: make(chan *domain.InputRecord), done: make(chan struct{})}
}

func (s *blockingSource) Next() (*domain.InputRecord, error) {
	select {
	case rec := <-s.ch:
		return rec, nil
	case <-s.done:
		return nil, io.EOF
	}
}

func (s *blockingSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type mockPublisher struct {
	mu       sync.Mutex
	progress []domain.PipelineProgress
	saved    []domain.CheckpointSaved
}

func (m *mockPublisher) PublishProgress(ctx context.Context, p domain.PipelineProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = append(m.progress, p)
	return nil
}

func (m *mockPublisher) PublishCheckpointSaved(ctx context.Context, s domain.CheckpointSaved) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, s)
	return nil
}

// frResolver resolves every coordinate to Dreux, France.
func frResolver() *usecases.ResolverService {
	boundaries := &mockBoundaryRepo{
		findFn: func(ctx context.Context, coord domain.Coordinate) ([]domain.BoundaryMatch, error) {
			return []domain.BoundaryMatch{
				{AdminLevel: 2, Name: "France"},
				{AdminLevel: 8, Name: "Dreux"},
			}, nil
		},
	}
	return usecases.NewResolverService(boundaries, nil, testCountries(), nil, nil)
}

func coord(lat, lon float64) *domain.Coordinate {
	return &domain.Coordinate{Lat: lat, Lon: lon}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestPipelineRun_ResolvesAll(t *testing.T) {
	store := &mockCheckpointStore{}
	src := &sliceSource{recs: []*domain.InputRecord{
		{ID: "N1", Name: "Ecole Godard", Coord: coord(48.73314, 1.36157)},
		{ID: "N2", Name: "Ecole Sainte-Agnes", Coord: coord(48.74001, 1.36521)},
		{ID: "W3", Name: "College Curie", Coord: coord(48.72988, 1.35544)},
	}}
	svc := usecases.NewPipelineService(frResolver(), store, nil, usecases.PipelineOptions{
		Workers: 2, SaveEvery: 100, SaveInterval: time.Hour,
	})

	progress, err := svc.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if progress.Seen != 3 || progress.Resolved != 3 || progress.Skipped != 0 || progress.Records != 3 {
		t.Errorf("progress = %+v, want 3 seen, 3 resolved, 0 skipped, 3 records", progress)
	}
	cp := store.lastSave()
	if len(cp) != 3 {
		t.Fatalf("checkpoint holds %d records, want 3", len(cp))
	}
	rec, ok := cp["N1"]
	if !ok {
		t.Fatal("checkpoint missing N1")
	}
	if rec.Name != "Ecole Godard" {
		t.Errorf("N1 name = %q", rec.Name)
	}
	if rec.Coordinate == nil {
		t.Error("N1 coordinate not persisted")
	}
	if deref(rec.Address.Country) != "France" || deref(rec.Address.City) != "Dreux" {
		t.Errorf("N1 address = %s/%s, want France/Dreux", deref(rec.Address.Country), deref(rec.Address.City))
	}
}

func TestPipelineRun_ResumeSkipsCompletedRecords(t *testing.T) {
	prior := domain.ResolutionRecord{
		Name:    "Alte Schule",
		Address: domain.ResolvedAddress{CountryCode: str("DE"), Country: str("Germany")},
	}
	store := &mockCheckpointStore{initial: domain.Checkpoint{"N1": prior}}
	src := &sliceSource{recs: []*domain.InputRecord{
		{ID: "N1", Name: "Alte Schule", Coord: coord(52.52, 13.40)},
		{ID: "N2", Name: "Ecole Godard", Coord: coord(48.73314, 1.36157)},
	}}
	svc := usecases.NewPipelineService(frResolver(), store, nil, usecases.PipelineOptions{
		Workers: 1, SaveEvery: 100, SaveInterval: time.Hour,
	})

	progress, err := svc.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if progress.Resolved != 1 || progress.Skipped != 1 || progress.Records != 2 {
		t.Errorf("progress = %+v, want 1 resolved, 1 skipped, 2 records", progress)
	}
	cp := store.lastSave()
	if deref(cp["N1"].Address.Country) != "Germany" {
		t.Errorf("N1 was re-resolved to %s, want the prior Germany answer kept", deref(cp["N1"].Address.Country))
	}
	if deref(cp["N2"].Address.Country) != "France" {
		t.Errorf("N2 country = %s", deref(cp["N2"].Address.Country))
	}
}

func TestPipelineRun_RerunResolvesNothing(t *testing.T) {
	first := &mockCheckpointStore{}
	recs := []*domain.InputRecord{
		{ID: "N1", Name: "Ecole Godard", Coord: coord(48.73314, 1.36157)},
		{ID: "N2", Name: "Ecole Sainte-Agnes", Coord: coord(48.74001, 1.36521)},
	}
	svc := usecases.NewPipelineService(frResolver(), first, nil, usecases.PipelineOptions{
		Workers: 1, SaveEvery: 100, SaveInterval: time.Hour,
	})
	if _, err := svc.Run(context.Background(), &sliceSource{recs: recs}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// second run over the same input, resuming from the first run's output
	second := &mockCheckpointStore{initial: first.lastSave()}
	svc = usecases.NewPipelineService(frResolver(), second, nil, usecases.PipelineOptions{
		Workers: 1, SaveEvery: 100, SaveInterval: time.Hour,
	})
	progress, err := svc.Run(context.Background(), &sliceSource{recs: recs})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if progress.Resolved != 0 || progress.Skipped != 2 || progress.Records != 2 {
		t.Errorf("progress = %+v, want everything skipped on rerun", progress)
	}
}

func TestPipelineRun_SkipsUnusableCoordinates(t *testing.T) {
	store := &mockCheckpointStore{}
	src := &sliceSource{recs: []*domain.InputRecord{
		{ID: "N1", Name: "no position"},
		{ID: "N2", Name: "off the map", Coord: coord(95, 10)},
		{ID: "N3", Name: "Ecole Godard", Coord: coord(48.73314, 1.36157)},
	}}
	svc := usecases.NewPipelineService(frResolver(), store, nil, usecases.PipelineOptions{
		Workers: 1, SaveEvery: 100, SaveInterval: time.Hour,
	})

	progress, err := svc.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if progress.Seen != 3 || progress.Resolved != 1 || progress.Skipped != 2 || progress.Records != 1 {
		t.Errorf("progress = %+v, want 3 seen, 1 resolved, 2 skipped, 1 record", progress)
	}
	if _, ok := store.lastSave()["N3"]; !ok {
		t.Error("checkpoint missing the one resolvable record")
	}
}

func TestPipelineRun_DuplicateInputResolvedOnce(t *testing.T) {
	store := &mockCheckpointStore{}
	src := &sliceSource{recs: []*domain.InputRecord{
		{ID: "N1", Name: "Ecole Godard", Coord: coord(48.73314, 1.36157)},
		{ID: "N1", Name: "Ecole Godard", Coord: coord(48.73314, 1.36157)},
	}}
	svc := usecases.NewPipelineService(frResolver(), store, nil, usecases.PipelineOptions{
		Workers: 1, SaveEvery: 100, SaveInterval: time.Hour,
	})

	progress, err := svc.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if progress.Resolved != 1 || progress.Skipped != 1 || progress.Records != 1 {
		t.Errorf("progress = %+v, want the duplicate skipped", progress)
	}
}

func TestPipelineRun_SavesEveryN(t *testing.T) {
	store := &mockCheckpointStore{}
	recs := make([]*domain.InputRecord, 0, 5)
	for i := 0; i < 5; i++ {
		recs = append(recs, &domain.InputRecord{
			ID:    "N" + string(rune('1'+i)),
			Name:  "school",
			Coord: coord(48.7+float64(i)/100, 1.36),
		})
	}
	src := &sliceSource{recs: recs}
	svc := usecases.NewPipelineService(frResolver(), store, nil, usecases.PipelineOptions{
		Workers: 1, SaveEvery: 2, SaveInterval: time.Hour,
	})

	if _, err := svc.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.saveCount() != 3 {
		t.Fatalf("saved %d times, want 3 (two batches of 2 plus the final flush)", store.saveCount())
	}
	store.mu.Lock()
	sizes := []int{len(store.saves[0]), len(store.saves[1]), len(store.saves[2])}
	store.mu.Unlock()
	if sizes[0] != 2 || sizes[1] != 4 || sizes[2] != 5 {
		t.Errorf("checkpoint sizes = %v, want [2 4 5]", sizes)
	}
}

func TestPipelineRun_FinalSaveFailureReported(t *testing.T) {
	store := &mockCheckpointStore{saveErr: errors.New("disk full")}
	src := &sliceSource{recs: []*domain.InputRecord{
		{ID: "N1", Name: "a", Coord: coord(48.73, 1.36)},
		{ID: "N2", Name: "b", Coord: coord(48.74, 1.37)},
		{ID: "N3", Name: "c", Coord: coord(48.75, 1.38)},
	}}
	svc := usecases.NewPipelineService(frResolver(), store, nil, usecases.PipelineOptions{
		Workers: 1, SaveEvery: 100, SaveInterval: time.Hour,
	})

	progress, err := svc.Run(context.Background(), src)
	if err == nil {
		t.Fatal("Run returned nil, want the final save failure")
	}
	if progress.Resolved != 3 {
		t.Errorf("progress.Resolved = %d, want 3 even though persisting failed", progress.Resolved)
	}
	if store.lastSaveLen() != 3 {
		t.Errorf("attempted save had %d records, want all 3", store.lastSaveLen())
	}
}

func TestPipelineRun_UnreadableCheckpointStartsFresh(t *testing.T) {
	store := &mockCheckpointStore{loadErr: errors.New("corrupt")}
	src := &sliceSource{recs: []*domain.InputRecord{
		{ID: "N1", Name: "a", Coord: coord(48.73, 1.36)},
		{ID: "N2", Name: "b", Coord: coord(48.74, 1.37)},
	}}
	svc := usecases.NewPipelineService(frResolver(), store, nil, usecases.PipelineOptions{
		Workers: 1, SaveEvery: 100, SaveInterval: time.Hour,
	})

	progress, err := svc.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if progress.Resolved != 2 || progress.Records != 2 {
		t.Errorf("progress = %+v, want a fresh run over both records", progress)
	}
}

func TestPipelineRun_CancelKeepsCompletedWork(t *testing.T) {
	store := &mockCheckpointStore{}
	src := newBlockingSource()
	svc := usecases.NewPipelineService(frResolver(), store, nil, usecases.PipelineOptions{
		Workers: 1, SaveEvery: 1, SaveInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type runResult struct {
		progress domain.PipelineProgress
		err      error
	}
	resCh := make(chan runResult, 1)
	go func() {
		progress, err := svc.Run(ctx, src)
		resCh <- runResult{progress, err}
	}()

	src.ch <- &domain.InputRecord{ID: "N1", Name: "a", Coord: coord(48.73, 1.36)}
	src.ch <- &domain.InputRecord{ID: "N2", Name: "b", Coord: coord(48.74, 1.37)}

	deadline := time.After(2 * time.Second)
	for store.lastSaveLen() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for both records to be checkpointed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	src.Close()

	select {
	case res := <-resCh:
		if res.err != nil {
			t.Fatalf("Run after cancel: %v", res.err)
		}
		if res.progress.Resolved != 2 || res.progress.Records != 2 {
			t.Errorf("progress = %+v, want both completed records kept", res.progress)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not shut down after cancellation")
	}
	if store.lastSaveLen() != 2 {
		t.Errorf("final checkpoint holds %d records, want 2", store.lastSaveLen())
	}
}

func TestPipelineRun_PublishesEvents(t *testing.T) {
	store := &mockCheckpointStore{path: "/var/lib/georesolver/resolved.json"}
	events := &mockPublisher{}
	src := &sliceSource{recs: []*domain.InputRecord{
		{ID: "N1", Name: "a", Coord: coord(48.73, 1.36)},
		{ID: "N2", Name: "b", Coord: coord(48.74, 1.37)},
	}}
	svc := usecases.NewPipelineService(frResolver(), store, events, usecases.PipelineOptions{
		Workers: 1, SaveEvery: 1, SaveInterval: time.Hour,
	})

	if _, err := svc.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.saved) == 0 {
		t.Fatal("no checkpoint events published")
	}
	last := events.saved[len(events.saved)-1]
	if last.Records != 2 {
		t.Errorf("last checkpoint event reports %d records, want 2", last.Records)
	}
	if last.Path != "/var/lib/georesolver/resolved.json" {
		t.Errorf("checkpoint event path = %q", last.Path)
	}
	if len(events.progress) == 0 {
		t.Fatal("no progress events published")
	}
	lastProgress := events.progress[len(events.progress)-1]
	if lastProgress.Resolved != 2 {
		t.Errorf("last progress event reports %d resolved, want 2", lastProgress.Resolved)
	}
}

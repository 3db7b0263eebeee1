package errorlog

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VatsalSy/SyncGuard/internal/logger"
	"github.com/VatsalSy/SyncGuard/internal/taxonomy"
)

type memoryStore struct {
	saved   map[string]*ErrorContext
	order   []string
	failing bool
	mu      sync.Mutex
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[string]*ErrorContext)}
}

func (s *memoryStore) SaveError(ctx context.Context, e *ErrorContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return stderrors.New("disk full")
	}
	for i, id := range s.order {
		if id == e.ID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.order = append(s.order, e.ID)
	s.saved[e.ID] = e.clone()
	return nil
}

func (s *memoryStore) UpdateError(ctx context.Context, e *ErrorContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return stderrors.New("disk full")
	}
	if _, ok := s.saved[e.ID]; !ok {
		return stderrors.New("not found")
	}
	s.saved[e.ID] = e.clone()
	return nil
}

func (s *memoryStore) DeleteErrors(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.saved, id)
	}
	return nil
}

func (s *memoryStore) ClearErrors(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = make(map[string]*ErrorContext)
	s.order = nil
	return nil
}

func (s *memoryStore) LoadErrors(ctx context.Context, limit int) ([]*ErrorContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ErrorContext
	for i := len(s.order) - 1; i >= 0; i-- {
		if e, ok := s.saved[s.order[i]]; ok {
			out = append(out, e.clone())
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type countingObserver struct {
	logged int
	dedup  int
}

func (o *countingObserver) ObserveError(e ErrorContext, deduplicated bool) {
	o.logged++
	if deduplicated {
		o.dedup++
	}
}

func newTestLogger(opts Options) *Logger {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return NewLogger(opts)
}

func netError(component, msg string) *ErrorContext {
	return NewErrorContext(taxonomy.ErrNetworkConnection, msg).WithLocation(component, "fetch")
}

func TestDeduplicationScenario(t *testing.T) {
	l := newTestLogger(Options{})

	l.Log(netError("SyncPanel", "Connection failed"))
	l.Log(netError("SyncPanel", "Connection failed"))
	l.Log(netError("SyncPanel", "Timeout"))

	history := l.GetHistory(0)
	require.Len(t, history, 2)

	assert.Equal(t, "Timeout", history[0].Message)
	assert.Equal(t, 1, history[0].Count)
	assert.Equal(t, "Connection failed", history[1].Message)
	assert.Equal(t, 2, history[1].Count)
}

func TestDeduplicationIdempotence(t *testing.T) {
	l := newTestLogger(Options{})

	const n = 7
	var first string
	for i := 0; i < n; i++ {
		stored := l.Log(netError("Editor", "Save failed"))
		if i == 0 {
			first = stored.ID
		}
		assert.Equal(t, first, stored.ID)
		assert.Equal(t, i+1, stored.Count)
	}
	require.Equal(t, 1, l.Len())

	// Message normalization
	l.Log(netError("Editor", "  save   FAILED "))
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, n+1, l.GetHistory(1)[0].Count)

	// Any differing attribute creates a new entry
	l.Log(netError("Sidebar", "Save failed"))
	l.Log(NewErrorContext(taxonomy.ErrNetworkServer, "Save failed").WithLocation("Editor", "fetch"))
	l.Log(netError("Editor", "Load failed"))
	assert.Equal(t, 4, l.Len())
}

func TestDedupMovesEntryToFront(t *testing.T) {
	l := newTestLogger(Options{})

	l.Log(netError("a", "one"))
	l.Log(netError("a", "two"))
	l.Log(netError("a", "one"))

	history := l.GetHistory(0)
	require.Len(t, history, 2)
	assert.Equal(t, "one", history[0].Message)
	assert.Equal(t, "two", history[1].Message)
}

func TestDedupWindow(t *testing.T) {
	l := newTestLogger(Options{DedupWindow: time.Minute})
	base := time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)

	e := netError("a", "flaky")
	e.Timestamp = base
	l.Log(e)

	e = netError("a", "flaky")
	e.Timestamp = base.Add(30 * time.Second)
	l.Log(e)
	assert.Equal(t, 1, l.Len())

	e = netError("a", "flaky")
	e.Timestamp = base.Add(5 * time.Minute)
	l.Log(e)
	assert.Equal(t, 2, l.Len())

	// Later duplicates merge into the newest entry
	e = netError("a", "flaky")
	e.Timestamp = base.Add(5*time.Minute + time.Second)
	stored := l.Log(e)
	assert.Equal(t, 2, stored.Count)
	assert.Equal(t, 2, l.Len())
}

func TestBoundedHistoryEvictsOldest(t *testing.T) {
	store := newMemoryStore()
	l := newTestLogger(Options{MaxEntries: 3, Store: store})

	for i := 0; i < 5; i++ {
		l.Log(netError("c", fmt.Sprintf("error %d", i)))
	}

	history := l.GetHistory(0)
	require.Len(t, history, 3)
	assert.Equal(t, "error 4", history[0].Message)
	assert.Equal(t, "error 2", history[2].Message)
	assert.Len(t, store.saved, 3)

	// An evicted key starts a fresh entry
	stored := l.Log(netError("c", "error 0"))
	assert.Equal(t, 1, stored.Count)
	assert.Len(t, l.GetHistory(2), 2)
}

func TestLogNeverPanicsOnMalformedInput(t *testing.T) {
	l := newTestLogger(Options{})

	assert.NotPanics(t, func() {
		assert.Nil(t, l.Log(nil))
		stored := l.Log(&ErrorContext{})
		require.NotNil(t, stored)
		assert.NotEmpty(t, stored.ID)
		assert.False(t, stored.Timestamp.IsZero())
		assert.Equal(t, 1, stored.Count)
		assert.Empty(t, stored.Severity)

		l.Log(&ErrorContext{Code: "NOT_A_CODE", Message: "x", Count: -4})
	})
	assert.Equal(t, 2, l.Len())

	stats := l.GetStatistics()
	assert.Equal(t, 2, stats.BySeverity[UnspecifiedKey])
}

func TestLogReturnsCopies(t *testing.T) {
	l := newTestLogger(Options{})

	e := netError("c", "m")
	e.AppState = map[string]interface{}{"route": "/notes"}
	stored := l.Log(e)

	e.AppState["route"] = "changed"
	stored.AppState["route"] = "changed too"
	stored.Location.Component = "other"

	got := l.GetHistory(1)[0]
	assert.Equal(t, "/notes", got.AppState["route"])
	assert.Equal(t, "c", got.Location.Component)
}

func TestNewErrorContextFillsTaxonomy(t *testing.T) {
	e := NewErrorContext("err-state-4000", "state lost")
	assert.Equal(t, taxonomy.ErrStateCorrupted, e.Code)
	assert.Equal(t, taxonomy.TypeState, e.Type)
	assert.Equal(t, taxonomy.SeverityCritical, e.Severity)
	assert.False(t, e.Recoverable)
	assert.True(t, e.IsCritical())

	e = NewErrorContext(taxonomy.ErrNetworkTimeout, "slow")
	assert.True(t, e.Recoverable)
	assert.NotEmpty(t, e.SuggestedActions)

	e = NewErrorContext("ERR_MADE_UP", "x").WithOriginal(stderrors.New("root cause"))
	assert.Empty(t, e.Type)
	assert.Equal(t, "root cause", e.OriginalError)
}

func TestLogKeepsCallerRecoverable(t *testing.T) {
	l := newTestLogger(Options{})

	stored := l.Log(&ErrorContext{Code: taxonomy.ErrStateCorrupted, Message: "retry from replica", Recoverable: true})
	assert.Equal(t, taxonomy.SeverityCritical, stored.Severity)
	assert.True(t, stored.Recoverable)

	stored = l.Log(&ErrorContext{Code: taxonomy.ErrStateCorrupted, Message: "typed", Type: taxonomy.TypeState})
	assert.Equal(t, taxonomy.SeverityCritical, stored.Severity)
	assert.False(t, stored.Recoverable, "a partly classified entry keeps its own value")

	stored = l.Log(&ErrorContext{Code: taxonomy.ErrNetworkTimeout, Message: "bare"})
	assert.True(t, stored.Recoverable)
}

func TestQueries(t *testing.T) {
	l := newTestLogger(Options{})

	l.Log(netError("Sync", "Connection failed"))
	l.Log(NewErrorContext(taxonomy.ErrValidationInput, "Title required").WithLocation("Form", "submit"))
	l.Log(NewErrorContext(taxonomy.ErrStateCorrupted, "Store diverged").WithLocation("Store", "hydrate"))
	l.Log(NewErrorContext(taxonomy.ErrTaskTimeout, "Export slow").WithOriginal(stderrors.New("context deadline exceeded")))

	assert.Len(t, l.GetErrorsByType(taxonomy.TypeNetwork), 1)
	assert.Len(t, l.GetErrorsByType(taxonomy.TypeSSE), 0)
	assert.Len(t, l.GetErrorsBySeverity(taxonomy.SeverityCritical), 1)
	assert.Len(t, l.GetErrorsByCode("err_validation_3000"), 1)

	assert.Len(t, l.Search("FAILED"), 1)
	assert.Len(t, l.Search("hydrate"), 1)
	assert.Len(t, l.Search("deadline"), 1)
	assert.Empty(t, l.Search("   "))
	assert.Len(t, l.GetHistory(2), 2)

	assert.Equal(t, 4, l.Clear())
	assert.Empty(t, l.GetHistory(0))
}

func TestExportRoundTrip(t *testing.T) {
	l := newTestLogger(Options{})

	e := netError("Sync", "Connection failed")
	e.AppState = map[string]interface{}{"route": "/notes", "online": "false"}
	e.Environment = map[string]string{"os": "linux"}
	e.Stack = "main.go:12"
	l.Log(e)
	l.Log(netError("Sync", "Connection failed"))
	l.Log(NewErrorContext(taxonomy.ErrSSEParse, `bad "frame"`))

	data, err := l.Export()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version"`)
	assert.Contains(t, string(data), `"exportedAt"`)

	doc, err := ParseExport(data)
	require.NoError(t, err)
	assert.Equal(t, ExportVersion, doc.Version)
	assert.Equal(t, l.GetHistory(0), doc.Errors)

	// Import into a fresh logger reproduces the history
	other := newTestLogger(Options{})
	n, err := other.Import(data)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, l.GetHistory(0), other.GetHistory(0))

	_, err = other.Import([]byte("{not json"))
	assert.Error(t, err)
	_, err = other.Import([]byte(`{"errors": []}`))
	assert.Error(t, err)
}

func TestExportAsCSV(t *testing.T) {
	l := newTestLogger(Options{})
	e := NewErrorContext(taxonomy.ErrSSEParse, `bad "frame", again`).WithLocation("Stream", "parse")
	e.Timestamp = time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)
	l.Log(e)

	lines := strings.Split(strings.TrimSpace(string(l.ExportAsCSV())), "\r\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `"Timestamp","Code","Message","Type","Severity","Component","Function","Recoverable"`, lines[0])
	assert.Equal(t,
		`"2026-10-01T10:00:00Z","ERR_SSE_6001","bad ""frame"", again","sse","medium","Stream","parse","false"`,
		lines[1])
}

func TestStatisticsConsistency(t *testing.T) {
	l := newTestLogger(Options{})

	for i := 0; i < 3; i++ {
		l.Log(netError("Sync", "Connection failed"))
	}
	l.Log(NewErrorContext(taxonomy.ErrStateCorrupted, "lost"))
	l.Log(NewErrorContext(taxonomy.ErrTaskExecution, "job"))
	l.Log(&ErrorContext{Message: "bare"})

	stats := l.GetStatistics()
	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 4, stats.Unique)

	sum := func(m map[string]int) int {
		total := 0
		for _, v := range m {
			total += v
		}
		return total
	}
	assert.Equal(t, stats.Total, sum(stats.ByType))
	assert.Equal(t, stats.Total, sum(stats.BySeverity))
	assert.Equal(t, 3, stats.ByType[string(taxonomy.TypeNetwork)])
	assert.Equal(t, 1, stats.Critical)

	require.NotEmpty(t, stats.TopErrors)
	assert.Equal(t, "Connection failed", stats.TopErrors[0].Message)
	assert.Equal(t, 3, stats.TopErrors[0].Count)
	assert.False(t, stats.LastErrorAt.IsZero())
}

func TestRecoveryRate(t *testing.T) {
	l := newTestLogger(Options{})

	a := l.Log(netError("a", "one"))
	l.Log(netError("a", "two"))
	l.Log(NewErrorContext(taxonomy.ErrStateCorrupted, "unrecoverable"))

	stats := l.GetStatistics()
	assert.Equal(t, 2, stats.Recoverable)
	assert.Zero(t, stats.RecoveryRate)
	assert.Zero(t, stats.AverageRecoveryTime)

	assert.True(t, l.MarkRecovered(a.ID, 4*time.Second))
	assert.False(t, l.MarkRecovered("missing", time.Second))
	assert.False(t, l.MarkRecovered(a.ID, 0))

	stats = l.GetStatistics()
	assert.InDelta(t, 0.5, stats.RecoveryRate, 1e-9)
	assert.Equal(t, 4*time.Second, stats.AverageRecoveryTime)
}

func TestCalculateErrorTrend(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	window := TrendWindow{Start: start, End: start.Add(4 * time.Hour), Bucket: time.Hour}

	entries := []ErrorContext{
		{Timestamp: start.Add(10 * time.Minute), Count: 2},
		{Timestamp: start, LastOccurrence: start.Add(3*time.Hour + 59*time.Minute), Count: 1},
		{Timestamp: start.Add(90 * time.Minute)},
		{Timestamp: start.Add(-time.Minute), Count: 9},
		{Timestamp: start.Add(4 * time.Hour), Count: 9},
	}

	points := CalculateErrorTrend(entries, window)
	require.Len(t, points, 4)
	assert.Equal(t, start, points[0].Start)
	assert.Equal(t, start.Add(3*time.Hour), points[3].Start)

	counts := []int{points[0].Count, points[1].Count, points[2].Count, points[3].Count}
	assert.Equal(t, []int{2, 1, 0, 1}, counts)

	assert.Nil(t, CalculateErrorTrend(entries, TrendWindow{Start: start, End: start, Bucket: time.Hour}))
	assert.Nil(t, CalculateErrorTrend(entries, TrendWindow{Start: start, End: start.Add(time.Hour)}))

	// Partial last bucket
	points = CalculateErrorTrend(nil, TrendWindow{Start: start, End: start.Add(90 * time.Minute), Bucket: time.Hour})
	assert.Len(t, points, 2)

	// Too many buckets
	assert.Nil(t, CalculateErrorTrend(entries, TrendWindow{Start: start, End: start.Add(24 * time.Hour), Bucket: time.Nanosecond}))
	points = CalculateErrorTrend(nil, TrendWindow{Start: start, End: start.Add(MaxTrendBuckets * time.Second), Bucket: time.Second})
	assert.Len(t, points, MaxTrendBuckets)

	def := DefaultTrendWindow(start.Add(30 * time.Minute))
	assert.Equal(t, 24*time.Hour, def.End.Sub(def.Start))
	assert.Len(t, CalculateErrorTrend(nil, def), 24)
}

func TestPersistedMirror(t *testing.T) {
	store := newMemoryStore()
	l := newTestLogger(Options{Store: store})

	l.Log(netError("a", "one"))
	l.Log(netError("a", "one"))
	l.Log(netError("a", "two"))
	require.Len(t, store.saved, 2)

	restored := newTestLogger(Options{Store: store})
	n, err := restored.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	history := restored.GetHistory(0)
	require.Len(t, history, 2)
	assert.Equal(t, "two", history[0].Message)
	assert.Equal(t, 2, history[1].Count)

	l.Clear()
	assert.Empty(t, store.saved)

	n, err = newTestLogger(Options{}).Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkRecoveredKeepsPersistedOrder(t *testing.T) {
	store := newMemoryStore()
	l := newTestLogger(Options{Store: store})

	first := l.Log(netError("a", "first"))
	l.Log(netError("a", "second"))
	require.True(t, l.MarkRecovered(first.ID, 3*time.Second))

	restored := newTestLogger(Options{Store: store})
	_, err := restored.Restore(context.Background())
	require.NoError(t, err)

	history := restored.GetHistory(0)
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].Message)
	assert.Equal(t, "first", history[1].Message)
	assert.Equal(t, 3*time.Second, history[1].RecoveryTime)
	assert.Equal(t, l.GetHistory(0), history)
}

func TestStoreFailureIsBestEffort(t *testing.T) {
	store := newMemoryStore()
	store.failing = true
	l := newTestLogger(Options{Store: store})

	stored := l.Log(netError("a", "one"))
	require.NotNil(t, stored)
	assert.Equal(t, 1, l.Len())
}

func TestObservers(t *testing.T) {
	l := newTestLogger(Options{})
	obs := &countingObserver{}
	l.AddObserver(obs)

	l.Log(netError("a", "one"))
	l.Log(netError("a", "one"))
	l.Log(nil)

	assert.Equal(t, 2, obs.logged)
	assert.Equal(t, 1, obs.dedup)
}

func TestConcurrentLogging(t *testing.T) {
	l := newTestLogger(Options{MaxEntries: 50})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.Log(netError("c", fmt.Sprintf("m%d", i%10)))
				_ = l.GetStatistics()
				_ = l.Search("m1")
			}
		}(g)
	}
	wg.Wait()

	stats := l.GetStatistics()
	assert.Equal(t, 10, stats.Unique)
	assert.Equal(t, 800, stats.Total)
}

package errorlog

import (
	"sort"
	"time"

	"github.com/VatsalSy/SyncGuard/internal/taxonomy"
)

// UnspecifiedKey groups entries that carry no type or severity.
const UnspecifiedKey = "unspecified"

// TopErrorLimit is how many entries Statistics.TopErrors holds.
const TopErrorLimit = 5

// TopError is one of the most frequent entries.
type TopError struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Statistics aggregates the history. Counts are occurrences, so an entry
// deduplicated N times contributes N. ByType and BySeverity each sum to
// Total.
type Statistics struct {
	Total               int            `json:"total"`
	Unique              int            `json:"unique"`
	ByType              map[string]int `json:"byType"`
	BySeverity          map[string]int `json:"bySeverity"`
	ByCode              map[string]int `json:"byCode"`
	Critical            int            `json:"critical"`
	Recoverable         int            `json:"recoverable"`
	RecoveryRate        float64        `json:"recoveryRate"`
	AverageRecoveryTime time.Duration  `json:"averageRecoveryTime"`
	TopErrors           []TopError     `json:"topErrors"`
	LastErrorAt         time.Time      `json:"lastErrorAt,omitempty"`
}

// GetStatistics computes statistics over a consistent snapshot.
func (l *Logger) GetStatistics() Statistics {
	return CalculateStatistics(l.GetHistory(0))
}

// CalculateStatistics aggregates entries.
//
// RecoveryRate is the share of recoverable entries with a recorded recovery
// time; AverageRecoveryTime averages those times. Both are zero when no
// entry qualifies.
func CalculateStatistics(entries []ErrorContext) Statistics {
	stats := Statistics{
		Unique:     len(entries),
		ByType:     make(map[string]int),
		BySeverity: make(map[string]int),
		ByCode:     make(map[string]int),
		TopErrors:  []TopError{},
	}

	var recovered int
	var recoveryTotal time.Duration

	for _, e := range entries {
		n := occurrences(e)
		stats.Total += n
		stats.ByType[keyOr(string(e.Type))] += n
		stats.BySeverity[keyOr(string(e.Severity))] += n
		stats.ByCode[keyOr(e.Code)] += n

		if e.Severity == taxonomy.SeverityCritical {
			stats.Critical += n
		}
		if e.Recoverable {
			stats.Recoverable++
			if e.RecoveryTime > 0 {
				recovered++
				recoveryTotal += e.RecoveryTime
			}
		}
		if last := lastSeen(e); last.After(stats.LastErrorAt) {
			stats.LastErrorAt = last
		}
	}

	if stats.Recoverable > 0 {
		stats.RecoveryRate = float64(recovered) / float64(stats.Recoverable)
	}
	if recovered > 0 {
		stats.AverageRecoveryTime = recoveryTotal / time.Duration(recovered)
	}

	top := make([]ErrorContext, len(entries))
	copy(top, entries)
	sort.SliceStable(top, func(i, j int) bool {
		if occurrences(top[i]) != occurrences(top[j]) {
			return occurrences(top[i]) > occurrences(top[j])
		}
		return lastSeen(top[i]).After(lastSeen(top[j]))
	})
	for i := 0; i < len(top) && i < TopErrorLimit; i++ {
		stats.TopErrors = append(stats.TopErrors, TopError{
			ID:      top[i].ID,
			Code:    top[i].Code,
			Message: top[i].Message,
			Count:   occurrences(top[i]),
		})
	}

	return stats
}

func occurrences(e ErrorContext) int {
	if e.Count <= 0 {
		return 1
	}
	return e.Count
}

func lastSeen(e ErrorContext) time.Time {
	if e.LastOccurrence.IsZero() {
		return e.Timestamp
	}
	return e.LastOccurrence
}

func keyOr(k string) string {
	if k == "" {
		return UnspecifiedKey
	}
	return k
}

// TrendWindow is the time range and bucket width for a trend.
type TrendWindow struct {
	Start  time.Time
	End    time.Time
	Bucket time.Duration
}

// DefaultTrendWindow covers the 24 hours before now in hourly buckets.
func DefaultTrendWindow(now time.Time) TrendWindow {
	end := now.UTC().Truncate(time.Hour).Add(time.Hour)
	return TrendWindow{Start: end.Add(-24 * time.Hour), End: end, Bucket: time.Hour}
}

// TrendPoint is one bucket of a trend.
type TrendPoint struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// Trend buckets the current history.
func (l *Logger) Trend(window TrendWindow) []TrendPoint {
	return CalculateErrorTrend(l.GetHistory(0), window)
}

// MaxTrendBuckets bounds how many points one trend may produce.
const MaxTrendBuckets = 10000

// CalculateErrorTrend buckets entries by last occurrence, weighted by
// count. Entries outside [Start, End) are ignored. An empty or inverted
// window, or one needing more than MaxTrendBuckets buckets, yields nil.
func CalculateErrorTrend(entries []ErrorContext, window TrendWindow) []TrendPoint {
	if window.Bucket <= 0 || !window.End.After(window.Start) {
		return nil
	}

	span := window.End.Sub(window.Start)
	buckets := int64(span / window.Bucket)
	if span%window.Bucket != 0 {
		buckets++
	}
	if buckets > MaxTrendBuckets {
		return nil
	}
	n := int(buckets)

	points := make([]TrendPoint, n)
	for i := range points {
		points[i].Start = window.Start.Add(time.Duration(i) * window.Bucket)
	}

	for _, e := range entries {
		at := lastSeen(e)
		if at.Before(window.Start) || !at.Before(window.End) {
			continue
		}
		points[int(at.Sub(window.Start)/window.Bucket)].Count += occurrences(e)
	}
	return points
}

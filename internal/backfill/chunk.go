package backfill

import (
	"fmt"
	"time"

	"github.com/hpungsan/gather/internal/collector"
	"github.com/hpungsan/gather/internal/config"
)

// Chunk is an inclusive range of calendar days processed as one
// progress-advancing unit.
type Chunk struct {
	From time.Time
	To   time.Time
}

func (c Chunk) String() string {
	return c.From.Format(collector.DateLayout) + ".." + c.To.Format(collector.DateLayout)
}

// Split divides [from, to] into chunks. Week chunks are 7 days counted from
// from; month chunks end on the last day of each calendar month. The last
// chunk is cut at to.
func Split(from, to time.Time, size string) ([]Chunk, error) {
	from, to = collector.Day(from), collector.Day(to)
	if to.Before(from) {
		return nil, nil
	}

	var next func(time.Time) time.Time
	switch size {
	case config.ChunkDay:
		next = func(t time.Time) time.Time { return t }
	case config.ChunkWeek, "":
		next = func(t time.Time) time.Time { return t.AddDate(0, 0, 6) }
	case config.ChunkMonth:
		next = func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		}
	default:
		return nil, fmt.Errorf("unknown chunk size %q", size)
	}

	var chunks []Chunk
	for start := from; !start.After(to); {
		end := next(start)
		if end.After(to) {
			end = to
		}
		chunks = append(chunks, Chunk{From: start, To: end})
		start = end.AddDate(0, 0, 1)
	}
	return chunks, nil
}

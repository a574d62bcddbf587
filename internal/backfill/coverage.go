package backfill

import (
	"slices"
	"time"

	"github.com/hpungsan/gather/internal/collector"
	"github.com/hpungsan/gather/internal/ledger"
)

// Completed days past the pointer and unresolved failures are both kept as
// day ranges, so records written under one chunk size or alignment are
// resolved by chunks of another.

func nextDay(t time.Time) time.Time { return t.AddDate(0, 0, 1) }

// subtract returns the days of c not in cut, in order.
func subtract(c, cut Chunk) []Chunk {
	if cut.To.Before(c.From) || cut.From.After(c.To) {
		return []Chunk{c}
	}
	var out []Chunk
	if cut.From.After(c.From) {
		out = append(out, Chunk{From: c.From, To: cut.From.AddDate(0, 0, -1)})
	}
	if cut.To.Before(c.To) {
		out = append(out, Chunk{From: nextDay(cut.To), To: c.To})
	}
	return out
}

func subtractAll(c Chunk, cuts []Chunk) []Chunk {
	rest := []Chunk{c}
	for _, cut := range cuts {
		var next []Chunk
		for _, r := range rest {
			next = append(next, subtract(r, cut)...)
		}
		rest = next
	}
	return rest
}

// mergeRanges sorts ranges and joins overlapping or adjacent ones.
func mergeRanges(cs []Chunk) []Chunk {
	if len(cs) == 0 {
		return nil
	}
	sorted := slices.Clone(cs)
	slices.SortFunc(sorted, func(a, b Chunk) int { return a.From.Compare(b.From) })

	out := []Chunk{sorted[0]}
	for _, c := range sorted[1:] {
		last := &out[len(out)-1]
		if !c.From.After(nextDay(last.To)) {
			if c.To.After(last.To) {
				last.To = c.To
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

func parseRange(from, to string) (Chunk, bool) {
	f, err := time.Parse(collector.DateLayout, from)
	if err != nil {
		return Chunk{}, false
	}
	t, err := time.Parse(collector.DateLayout, to)
	if err != nil || t.Before(f) {
		return Chunk{}, false
	}
	return Chunk{From: f, To: t}, true
}

func completedOf(e ledger.ProgressEntry) []Chunk {
	out := make([]Chunk, 0, len(e.CompletedChunks))
	for _, r := range e.CompletedChunks {
		if c, ok := parseRange(r.From, r.To); ok {
			out = append(out, c)
		}
	}
	return out
}

func dayRanges(cs []Chunk) []ledger.DayRange {
	if len(cs) == 0 {
		return nil
	}
	out := make([]ledger.DayRange, len(cs))
	for i, c := range cs {
		out[i] = ledger.DayRange{From: c.From.Format(collector.DateLayout), To: c.To.Format(collector.DateLayout)}
	}
	return out
}

// trimFailures removes the days in cuts from every failure record, splitting
// records that are only partly covered.
func trimFailures(fs []ledger.ChunkFailure, cuts []Chunk) []ledger.ChunkFailure {
	var out []ledger.ChunkFailure
	for _, f := range fs {
		c, ok := parseRange(f.From, f.To)
		if !ok {
			out = append(out, f)
			continue
		}
		for _, r := range subtractAll(c, cuts) {
			piece := f
			piece.From = r.From.Format(collector.DateLayout)
			piece.To = r.To.Format(collector.DateLayout)
			out = append(out, piece)
		}
	}
	return out
}

func earliestFailure(fs []ledger.ChunkFailure) (time.Time, bool) {
	var first time.Time
	found := false
	for _, f := range fs {
		c, ok := parseRange(f.From, f.To)
		if ok && (!found || c.From.Before(first)) {
			first, found = c.From, true
		}
	}
	return first, found
}

// pendingChunks drops the days of chunks already collected past the pointer.
// skipped counts chunks with nothing left to collect.
func pendingChunks(chunks []Chunk, e ledger.ProgressEntry) (pending []Chunk, skipped int) {
	done := completedOf(e)
	for _, ch := range chunks {
		rest := subtractAll(ch, done)
		if len(rest) == 0 {
			skipped++
		}
		pending = append(pending, rest...)
	}
	return pending, skipped
}

// markCompleted records ch as collected, clears the failed days it covers and
// moves the pointer across every completed range now contiguous with it.
// Without a pointer, a range may start it only if no failure precedes it.
func markCompleted(e *ledger.ProgressEntry, ch Chunk) {
	e.FailedChunks = trimFailures(e.FailedChunks, []Chunk{ch})
	firstFail, hasFail := earliestFailure(e.FailedChunks)
	last, hasLast := e.LastCompleted()

	var rest []Chunk
	for _, r := range mergeRanges(append(completedOf(*e), ch)) {
		if hasLast && !r.To.After(last) {
			continue
		}
		joins := !hasFail || r.From.Before(firstFail)
		if hasLast {
			joins = !r.From.After(nextDay(last))
		}
		if joins {
			last, hasLast = r.To, true
			continue
		}
		rest = append(rest, r)
	}

	e.CompletedChunks = dayRanges(rest)
	if hasLast {
		e.LastCompletedDate = last.Format(collector.DateLayout)
		e.FailedChunks = trimFailures(e.FailedChunks, []Chunk{{To: last}})
	}
	if len(e.FailedChunks) == 0 {
		e.FailedChunks = nil
	}
}

// markFailed records the days of ch that were never collected as one or more
// unresolved failures, replacing older records for the same days.
func markFailed(e *ledger.ProgressEntry, ch Chunk, failure ledger.ChunkFailure) {
	cuts := completedOf(*e)
	if last, ok := e.LastCompleted(); ok {
		cuts = append(cuts, Chunk{To: last})
	}

	e.FailedChunks = trimFailures(e.FailedChunks, []Chunk{ch})
	for _, r := range subtractAll(ch, cuts) {
		f := failure
		f.From = r.From.Format(collector.DateLayout)
		f.To = r.To.Format(collector.DateLayout)
		e.FailedChunks = append(e.FailedChunks, f)
	}
	slices.SortFunc(e.FailedChunks, func(a, b ledger.ChunkFailure) int {
		switch {
		case a.From < b.From:
			return -1
		case a.From > b.From:
			return 1
		}
		return 0
	})
	if len(e.FailedChunks) == 0 {
		e.FailedChunks = nil
	}
}

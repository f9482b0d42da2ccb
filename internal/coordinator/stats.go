package coordinator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	perGPUWindow = 10 // 5s samples kept per device for its rolling rate (50s of history).
	globalWindow = 30 // 5s samples kept for the global rate (150s of history).
)

// ring is a fixed-capacity int64 ring buffer of cumulative-counter snapshots,
// one push per 5-second tick. Rate is (newest-oldest)/Δt over whatever span
// of the window is currently populated.
type ring struct {
	buf []int64
	cap int
}

func newRing(cap int) *ring {
	return &ring{cap: cap}
}

func (r *ring) push(v int64) {
	r.buf = append(r.buf, v)
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
}

// rate returns (newest-oldest)/((len-1)*sampleInterval), or 0 if fewer than
// two samples have been taken yet.
func (r *ring) rate() float64 {
	if len(r.buf) < 2 {
		return 0
	}
	delta := r.buf[len(r.buf)-1] - r.buf[0]
	elapsed := float64(len(r.buf)-1) * sampleInterval.Seconds()
	return float64(delta) / elapsed
}

// counters is one devid's last-reported cumulative (sols_found, shares_found).
type counters struct {
	sols   int64
	shares int64
}

// StatsWindow aggregates per-devid cumulative solver counters into the
// periodic stdout summary line. Every 5 seconds a snapshot of each devid's
// current cumulative sols is pushed into its own rolling window and into the
// global window; rates are the slope of those windows, never an
// instantaneous value reported by the solver itself.
type StatsWindow struct {
	mu      sync.Mutex
	last    map[int]counters
	perGPU  map[int]*ring
	global  *ring
	haveJob bool
}

// NewStatsWindow constructs an empty StatsWindow.
func NewStatsWindow() *StatsWindow {
	return &StatsWindow{
		last:   make(map[int]counters),
		perGPU: make(map[int]*ring),
		global: newRing(globalWindow),
	}
}

// RecordJobDispatched marks that at least one job has been handed to the
// solvers; the stdout line is suppressed until this has happened once.
func (s *StatsWindow) RecordJobDispatched() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haveJob = true
}

// RecordStatus stores devID's latest reported cumulative counters. It does
// not itself push a sample into the rolling windows — that only happens on
// the 5-second Sample tick, so a devid reporting between ticks several times
// just keeps overwriting "last" until the tick reads it.
func (s *StatsWindow) RecordStatus(devID int, sols, shares int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[devID] = counters{sols: sols, shares: shares}
	if _, ok := s.perGPU[devID]; !ok {
		s.perGPU[devID] = newRing(perGPUWindow)
	}
}

// Sample takes one 5-second snapshot: pushes every devid's current
// cumulative sols into its window and into the global total, and returns the
// line to print — or "", false if nothing has happened yet.
func (s *StatsWindow) Sample() (line string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveJob || len(s.last) == 0 {
		return "", false
	}

	devIDs := make([]int, 0, len(s.last))
	for id := range s.last {
		devIDs = append(devIDs, id)
	}
	sort.Ints(devIDs)

	var totalSols, totalShares int64
	parts := make([]string, 0, len(devIDs))
	for _, id := range devIDs {
		c := s.last[id]
		s.perGPU[id].push(c.sols)
		totalSols += c.sols
		totalShares += c.shares
		parts = append(parts, fmt.Sprintf("dev%d %s", id, formatRate(s.perGPU[id].rate())))
	}
	s.global.push(totalSols)

	return fmt.Sprintf("Total %s sol/s [%s] %d share(s)",
		formatRate(s.global.rate()), strings.Join(parts, ", "), totalShares), true
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 1, 64)
}

// ParseStatus extracts the cumulative "<nr_sols> <nr_shares>" counters from a
// solver status line body.
func ParseStatus(text string) (sols, shares int64, ok bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return 0, 0, false
	}
	sols, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	shares, err = strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return sols, shares, true
}

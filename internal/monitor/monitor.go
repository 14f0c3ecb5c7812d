// Package monitor reports how many queue records are in each status. It only
// reads the queue directory.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loykin/patiently/internal/metrics"
	"github.com/loykin/patiently/internal/queue"
)

// Tally counts records per effective status.
type Tally map[queue.Status]int

// Outstanding is the number of waiting and running jobs.
func (t Tally) Outstanding() int {
	n := 0
	for st, c := range t {
		if !st.IsTerminal() {
			n += c
		}
	}
	return n
}

// Collect lists the queue and classifies every record. Records that cannot
// be classified are logged, skipped and reported in the anomaly count.
func Collect(store *queue.Store) (Tally, int, error) {
	records, err := store.List()
	if err != nil {
		return nil, 0, err
	}
	t := make(Tally, len(queue.Statuses))
	anomalies := 0
	for _, r := range records {
		st, ok, err := classify(store, r)
		if err != nil {
			slog.Warn("Skipping unreadable record", "id", r.ID, "status", r.Status, "error", err)
			anomalies++
			continue
		}
		if ok {
			t[st]++
		}
	}
	return t, anomalies, nil
}

// classify returns the effective status of r. ok is false when the record
// disappeared before it could be read.
func classify(store *queue.Store, r queue.Record) (queue.Status, bool, error) {
	if r.Status.IsTerminal() {
		return r.Status, true, nil
	}
	o, err := store.Owner(r)
	if errors.Is(err, fs.ErrNotExist) {
		// moved on since the listing
		cur, lerr := store.Lookup(r.ID)
		if errors.Is(lerr, queue.ErrNotFound) {
			return "", false, nil
		}
		if lerr != nil {
			return "", false, lerr
		}
		return store.Inspect(cur), true, nil
	}
	if err != nil {
		return "", false, err
	}
	if o.Known() && !o.Alive() {
		return queue.StatusCrashed, true, nil
	}
	return r.Status, true, nil
}

// Render formats one row per status, in lifecycle order.
func Render(t Tally) string {
	var b strings.Builder
	for _, st := range queue.Statuses {
		fmt.Fprintf(&b, "%10s: %d\n", st, t[st])
	}
	return b.String()
}

type Options struct {
	Interval    time.Duration
	MetricsFile string
	// Once renders a single tally and returns.
	Once bool
	// Plain disables the in-place overwrite, for output that is not a terminal.
	Plain bool
}

// Monitor repeatedly collects and renders the queue tally until no job is
// outstanding.
type Monitor struct {
	store *queue.Store
	out   io.Writer
	opts  Options

	mu    sync.RWMutex
	last  Tally
	lines int
}

func New(store *queue.Store, out io.Writer, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	return &Monitor{store: store, out: out, opts: opts}
}

// Snapshot returns a copy of the most recent tally.
func (m *Monitor) Snapshot() Tally {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(Tally, len(m.last))
	for k, v := range m.last {
		out[k] = v
	}
	return out
}

// Refresh collects and renders once, and returns the tally it rendered.
func (m *Monitor) Refresh() (Tally, error) {
	t, anomalies, err := Collect(m.store)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.last = t
	m.mu.Unlock()

	metrics.IncRefresh()
	metrics.AddAnomalies(anomalies)
	metrics.SetStatusCounts(t)
	if m.opts.MetricsFile != "" {
		if err := metrics.WriteTextfile(m.opts.MetricsFile); err != nil {
			slog.Warn("Cannot write metrics textfile", "path", m.opts.MetricsFile, "error", err)
		}
	}

	if err := m.draw(Render(t)); err != nil {
		return nil, fmt.Errorf("rendering tally: %w", err)
	}
	return t, nil
}

// draw writes frame over the previously drawn one.
func (m *Monitor) draw(frame string) error {
	var b strings.Builder
	if m.lines > 0 && !m.opts.Plain {
		// cursor up, then clear to end of screen
		fmt.Fprintf(&b, "\x1b[%dA\x1b[J", m.lines)
	}
	b.WriteString(frame)
	m.lines = strings.Count(frame, "\n")
	_, err := io.WriteString(m.out, b.String())
	return err
}

// Run refreshes every interval and returns nil once nothing is outstanding,
// or when ctx ends.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	for {
		t, err := m.Refresh()
		if err != nil {
			return err
		}
		if m.opts.Once || t.Outstanding() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

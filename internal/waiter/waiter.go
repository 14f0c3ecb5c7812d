// Package waiter blocks a job until few enough of the jobs submitted before
// it are still outstanding. It sleeps on filesystem notifications for a
// sliding window of precursor records instead of polling the queue.
package waiter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/loykin/patiently/internal/queue"
)

// ErrCancelled is returned when the waiting job's own record disappears.
var ErrCancelled = errors.New("own record removed while waiting")

// Options tune a Waiter.
type Options struct {
	// Limit is the concurrency limit: admission happens once fewer than
	// Limit precursors are outstanding. Values below 1 are treated as 1.
	Limit int
	// LivenessInterval re-checks watched precursors for owners that died
	// without touching their record. 0 disables the sweep.
	LivenessInterval time.Duration
	// RetryMaxElapsed bounds retries of watcher creation. 0 retries forever.
	RetryMaxElapsed time.Duration
}

type Waiter struct {
	store      *queue.Store
	opts       Options
	log        *slog.Logger
	newWatcher func() (*fsnotify.Watcher, error)
}

func New(store *queue.Store, opts Options, log *slog.Logger) *Waiter {
	if opts.Limit < 1 {
		opts.Limit = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Waiter{store: store, opts: opts, log: log, newWatcher: fsnotify.NewWatcher}
}

// Wait blocks until fewer than Limit of precursors are outstanding. A
// precursor stops being outstanding when its record is removed, reaches a
// terminal status, or its owner process is found dead. Wait returns
// ErrCancelled if self's record vanishes, and ctx.Err() if ctx ends first.
func (w *Waiter) Wait(ctx context.Context, self queue.Record, precursors []queue.Record) error {
	if len(precursors) < w.opts.Limit {
		return nil
	}
	w.log.Info("Waiting for jobs to finish", "precursors", len(precursors), "limit", w.opts.Limit)

	watcher, err := w.openWatcher(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	s := &session{
		store:    w.store,
		watcher:  watcher,
		log:      w.log,
		selfPath: w.store.Path(self),
		watched:  make(map[string]int, w.opts.Limit),
	}
	if err := watcher.Add(s.selfPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrCancelled
		}
		return fmt.Errorf("watching own record: %w", err)
	}

	pending := make([]int, 0, len(precursors))
	for _, p := range precursors {
		pending = append(pending, p.ID)
	}
	sort.Ints(pending)

	var tick <-chan time.Time
	if w.opts.LivenessInterval > 0 {
		t := time.NewTicker(w.opts.LivenessInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		for len(s.watched) < w.opts.Limit && len(pending) > 0 {
			id := pending[0]
			pending = pending[1:]
			if err := s.track(id); err != nil {
				return err
			}
		}
		if len(pending) == 0 && len(s.watched) < w.opts.Limit {
			w.log.Info("Admitted")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return errors.New("getting events: watcher closed")
			}
			if err := s.handle(ev); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("getting events: watcher closed")
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				return fmt.Errorf("getting events: %w", err)
			}
			w.log.Warn("Notification queue overflowed, rescanning precursors")
			if err := s.recheck(); err != nil {
				return err
			}
		case <-tick:
			if err := s.recheck(); err != nil {
				return err
			}
		}
	}
}

// openWatcher creates the notification handle, backing off while the system
// refuses (typically inotify instance exhaustion).
func (w *Waiter) openWatcher(ctx context.Context) (*fsnotify.Watcher, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = w.opts.RetryMaxElapsed

	var watcher *fsnotify.Watcher
	op := func() error {
		var err error
		watcher, err = w.newWatcher()
		return err
	}
	notify := func(err error, next time.Duration) {
		w.log.Warn("Cannot create file watcher, retrying", "error", err, "in", next)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	return watcher, nil
}

// session is the state of one Wait call: the window of watched precursor
// record paths and the watcher they are registered with.
type session struct {
	store    *queue.Store
	watcher  *fsnotify.Watcher
	log      *slog.Logger
	selfPath string
	watched  map[string]int // record path -> job id
}

// track installs a watch on the current record of precursor id, or returns
// without one when the precursor no longer counts. A record that moves
// between lookup and watch installation is looked up again.
func (s *session) track(id int) error {
	for {
		r, err := s.store.Lookup(id)
		if errors.Is(err, queue.ErrNotFound) {
			s.log.Debug("Precursor gone", "precursor", id)
			return nil
		}
		if err != nil {
			return fmt.Errorf("looking up job %d: %w", id, err)
		}
		if r.Status.IsTerminal() {
			s.log.Debug("Precursor done", "precursor", id, "status", r.Status)
			return nil
		}
		if s.store.Inspect(r) == queue.StatusCrashed {
			s.log.Warn("Precursor owner is gone, treating job as crashed", "precursor", id, "status", r.Status)
			return nil
		}
		path := s.store.Path(r)
		if err := s.watcher.Add(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("watching job %d: %w", id, err)
		}
		s.watched[path] = id
		s.log.Debug("Watching precursor", "precursor", id, "status", r.Status)
		return nil
	}
}

func (s *session) untrack(path string) {
	delete(s.watched, path)
	// inotify may already have dropped the watch with the rename or unlink
	_ = s.watcher.Remove(path)
}

func (s *session) handle(ev fsnotify.Event) error {
	if !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return nil
	}
	if ev.Name == s.selfPath {
		return ErrCancelled
	}
	id, ok := s.watched[ev.Name]
	if !ok {
		return nil
	}
	s.untrack(ev.Name)
	return s.track(id)
}

// recheck re-resolves every watched precursor from disk, for when events may
// have been lost or an owner died silently.
func (s *session) recheck() error {
	if _, err := os.Lstat(s.selfPath); errors.Is(err, fs.ErrNotExist) {
		return ErrCancelled
	}
	paths := make([]string, 0, len(s.watched))
	for p := range s.watched {
		paths = append(paths, p)
	}
	for _, path := range paths {
		id := s.watched[path]
		r, err := s.store.Lookup(id)
		if err == nil && s.store.Path(r) == path && s.store.Inspect(r) == r.Status {
			continue
		}
		s.untrack(path)
		if err := s.track(id); err != nil {
			return err
		}
	}
	return nil
}

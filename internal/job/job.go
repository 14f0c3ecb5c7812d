// Package job drives one submission through the queue: it claims a fresh id,
// waits for admission, runs the command and records how it ended.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/loykin/patiently/internal/process"
	"github.com/loykin/patiently/internal/queue"
	"github.com/loykin/patiently/internal/waiter"
)

// Job is a claimed queue record owned by this process. Only the owner moves
// it through its statuses.
type Job struct {
	ID         int
	Status     queue.Status
	Precursors []queue.Record

	store *queue.Store
	log   *slog.Logger
}

// Claim allocates the next id and creates its waiting record. Losing the race
// for an id to another process is retried with a fresh listing until a claim
// succeeds.
func Claim(store *queue.Store, command string, log *slog.Logger) (*Job, error) {
	if log == nil {
		log = slog.Default()
	}
	owner := queue.CurrentOwner(command)
	for {
		records, err := store.List()
		if err != nil {
			return nil, fmt.Errorf("claiming job id: %w", err)
		}
		id := queue.NextID(records)
		err = store.TryCreate(id, owner)
		if errors.Is(err, queue.ErrExists) {
			log.Debug("Job id taken, retrying", "id", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("claiming job id: %w", err)
		}
		j := &Job{
			ID:         id,
			Status:     queue.StatusWaiting,
			Precursors: queue.Active(records),
			store:      store,
			log:        log.With("id", id),
		}
		j.log.Debug("Claimed job", "precursors", len(j.Precursors))
		return j, nil
	}
}

func (j *Job) Record() queue.Record { return queue.Record{ID: j.ID, Status: j.Status} }

// Name is the base name used for files that belong to this job.
func (j *Job) Name() string { return queue.Prefix + "." + strconv.Itoa(j.ID) }

// Transition renames the record to the given status.
func (j *Job) Transition(to queue.Status) error {
	if err := j.store.SetStatus(j.ID, j.Status, to); err != nil {
		return err
	}
	j.log.Debug("Status changed", "from", j.Status, "to", to)
	j.Status = to
	return nil
}

// MarkCrashed makes a best-effort move to crashed. It does nothing once the
// job is terminal, and only logs when the rename itself fails.
func (j *Job) MarkCrashed() {
	if j.Status.IsTerminal() {
		return
	}
	if err := j.Transition(queue.StatusCrashed); err != nil {
		j.log.Warn("Cannot mark job crashed", "error", err)
	}
}

// Run waits for admission, executes spec once and records the outcome. The
// returned code is the one the tool should exit with. If the job's record is
// removed while waiting, Run returns 0 and a nil error without running
// anything. Any other failure before a terminal status marks the job crashed.
func (j *Job) Run(ctx context.Context, w *waiter.Waiter, spec process.Spec) (int, error) {
	err := w.Wait(ctx, j.Record(), j.Precursors)
	if errors.Is(err, waiter.ErrCancelled) {
		j.log.Info("Job cancelled while waiting")
		return 0, nil
	}
	if err != nil {
		j.MarkCrashed()
		return 1, fmt.Errorf("waiting for admission: %w", err)
	}

	if err := j.Transition(queue.StatusRunning); err != nil {
		if _, lerr := j.store.Lookup(j.ID); errors.Is(lerr, queue.ErrNotFound) {
			// removed between admission and start
			j.log.Info("Job cancelled while waiting")
			return 0, nil
		}
		j.MarkCrashed()
		return 1, err
	}

	if spec.Name == "" {
		spec.Name = j.Name()
	}
	j.log.Info("Running", "command", spec.Display())
	code, err := process.Run(spec)
	if err != nil {
		j.MarkCrashed()
		return 1, err
	}

	final := queue.StatusFinished
	if code != 0 {
		final = queue.StatusFailed
	}
	if err := j.Transition(final); err != nil {
		j.MarkCrashed()
		return code, err
	}
	j.log.Info("Job done", "status", final, "code", code)
	return code, nil
}

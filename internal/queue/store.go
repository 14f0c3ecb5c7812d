package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Prefix is the first dot-separated component of every record file name.
const Prefix = "patiently"

var (
	// ErrExists is returned by TryCreate when another process already holds the id.
	ErrExists = errors.New("record already exists")
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("record not found")
)

// Record identifies one job file: patiently.<id>.<status>.
type Record struct {
	ID     int    `json:"id"`
	Status Status `json:"status"`
}

// FileName returns the record's file name within the queue directory.
func (r Record) FileName() string {
	return Prefix + "." + strconv.Itoa(r.ID) + "." + string(r.Status)
}

// ParseFileName is the inverse of FileName.
func ParseFileName(name string) (Record, error) {
	parts := strings.Split(name, ".")
	if len(parts) != 3 || parts[0] != Prefix {
		return Record{}, fmt.Errorf("%s: not a queue record", name)
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id < 0 {
		return Record{}, fmt.Errorf("%s: invalid job id %q", name, parts[1])
	}
	st, err := ParseStatus(parts[2])
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", name, err)
	}
	return Record{ID: id, Status: st}, nil
}

// Store maps job ids to files in a single directory. It holds no state of its
// own: every call goes to the filesystem, so any number of processes may use
// the same directory concurrently.
type Store struct {
	dir string
}

// NewStore ensures dir exists and returns a Store rooted at it.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("queue directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating queue directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// Path returns the absolute-or-relative path of the record file for r.
func (s *Store) Path(r Record) string { return filepath.Join(s.dir, r.FileName()) }

// List returns every well-formed record in the directory sorted by id.
// Foreign or malformed entries are skipped. If a concurrent rename makes the
// same id appear twice, the later lifecycle status wins.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.dir, err)
	}
	byID := make(map[int]Record, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, Prefix+".") {
			slog.Debug("Skipping foreign queue entry", "name", name)
			continue
		}
		r, err := ParseFileName(name)
		if err != nil {
			slog.Warn("Skipping malformed queue entry", "error", err)
			continue
		}
		if prev, ok := byID[r.ID]; ok && statusIndex(prev.Status) > statusIndex(r.Status) {
			continue
		}
		byID[r.ID] = r
	}
	out := make([]Record, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// TryCreate atomically claims id by creating patiently.<id>.waiting with
// O_EXCL and writing owner into it. It returns ErrExists when another process
// holds the id, including the case where the other holder already renamed its
// record away from the waiting name.
func (s *Store) TryCreate(id int, owner Owner) error {
	r := Record{ID: id, Status: StatusWaiting}
	path := s.Path(r)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("creating %s: %w", path, err)
	}
	for _, st := range Statuses[1:] {
		if _, err := os.Lstat(s.Path(Record{ID: id, Status: st})); err == nil {
			_ = f.Close()
			_ = os.Remove(path)
			return ErrExists
		}
	}
	_, werr := f.Write(owner.encode())
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("writing owner to %s: %w", path, errors.Join(werr, cerr))
	}
	return nil
}

// Lookup returns the current record for id (status_of). Candidate names are
// probed in lifecycle order so a record that moves forward during the scan is
// still found.
func (s *Store) Lookup(id int) (Record, error) {
	for _, st := range Statuses {
		r := Record{ID: id, Status: st}
		_, err := os.Lstat(s.Path(r))
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return Record{}, fmt.Errorf("stat %s: %w", s.Path(r), err)
		}
	}
	return Record{}, ErrNotFound
}

// SetStatus renames the record for id from one status to another. The rename
// is atomic, so observers see either the old or the new name, never both or a
// third state.
func (s *Store) SetStatus(id int, from, to Status) error {
	if err := os.Rename(s.Path(Record{ID: id, Status: from}), s.Path(Record{ID: id, Status: to})); err != nil {
		return fmt.Errorf("changing status %s -> %s: %w", from, to, err)
	}
	return nil
}

// Remove deletes the record for id whatever its status. Removing an absent
// record is not an error.
func (s *Store) Remove(id int) error {
	for {
		r, err := s.Lookup(id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		err = os.Remove(s.Path(r))
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		// renamed between Lookup and Remove; look again
	}
}

// Owner reads the owner metadata stored in r. A record whose content has not
// been written yet yields a zero Owner and no error.
func (s *Store) Owner(r Record) (Owner, error) {
	b, err := os.ReadFile(s.Path(r))
	if err != nil {
		return Owner{}, err
	}
	return parseOwner(b)
}

// Inspect returns the effective status of r: a non-terminal record whose
// owning process is known to be gone is reported as crashed.
func (s *Store) Inspect(r Record) Status {
	if r.Status.IsTerminal() {
		return r.Status
	}
	o, err := s.Owner(r)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Unreadable queue record", "id", r.ID, "error", err)
		}
		return r.Status
	}
	if o.Known() && !o.Alive() {
		return StatusCrashed
	}
	return r.Status
}

// NextID returns one more than the largest id present, or 0 for an empty queue.
// Terminal records count too, so ids are never reused while any file holding
// a smaller or equal id exists.
func NextID(records []Record) int {
	next := 0
	for _, r := range records {
		if r.ID >= next {
			next = r.ID + 1
		}
	}
	return next
}

// Active filters records down to the non-terminal ones.
func Active(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if !r.Status.IsTerminal() {
			out = append(out, r)
		}
	}
	return out
}

func statusIndex(st Status) int {
	for i, s := range Statuses {
		if s == st {
			return i
		}
	}
	return -1
}

package queue

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/loykin/patiently/internal/detector"
)

// Owner identifies the process that created a record. It is written once, at
// claim time, as a PID line followed by a JSON meta line:
//
//	4242
//	{"start_unix":1760000000,"command":"make test"}
type Owner struct {
	PID       int    `json:"-"`
	StartUnix int64  `json:"start_unix"`
	Command   string `json:"command,omitempty"`
}

// CurrentOwner describes the calling process.
func CurrentOwner(command string) Owner {
	pid, start := detector.Self()
	return Owner{PID: pid, StartUnix: start, Command: command}
}

// Known reports whether the owner PID has been written.
func (o Owner) Known() bool { return o.PID > 0 }

// Alive reports whether the owning process still runs. Unknown owners are
// presumed alive.
func (o Owner) Alive() bool {
	if !o.Known() {
		return true
	}
	var d detector.Detector = detector.OwnerDetector{PID: o.PID, StartUnix: o.StartUnix}
	alive, err := d.Alive()
	if err != nil {
		slog.Debug("Liveness check failed, presuming alive", "detector", d.Describe(), "error", err)
		return true
	}
	return alive
}

func (o Owner) encode() []byte {
	meta, _ := json.Marshal(o)
	return []byte(strconv.Itoa(o.PID) + "\n" + string(meta) + "\n")
}

func parseOwner(b []byte) (Owner, error) {
	text := strings.TrimSpace(string(b))
	if text == "" {
		return Owner{}, nil
	}
	pidLine, rest, _ := strings.Cut(text, "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil {
		return Owner{}, fmt.Errorf("invalid owner pid: %w", err)
	}
	o := Owner{PID: pid}
	if rest = strings.TrimSpace(rest); rest != "" {
		// keep the PID even when the meta line is damaged
		_ = json.Unmarshal([]byte(rest), &o)
		o.PID = pid
	}
	return o, nil
}

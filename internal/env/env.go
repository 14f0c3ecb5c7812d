// Package env composes the environment a queued command runs with.
package env

import (
	"os"
	"sort"
	"strings"
)

// Names exported to every command patiently runs.
const (
	JobID    = "PATIENTLY_JOB_ID"
	QueueDir = "PATIENTLY_QUEUE_DIR"
)

type Var map[string]string

type Env struct {
	Var Var // job variables (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.env = parse(os.Environ())
}

// WithSet sets K=V and returns e for chaining.
func (e *Env) WithSet(k, v string) *Env {
	if e.Var == nil {
		e.Var = make(Var)
	}
	if k != "" {
		e.Var[k] = v
	}
	return e
}

// Merge composes the final environment list applying order:
// base = OS env (or cached)
// then user overrides (slice of "K=V") in order, with ${VAR} expanded
// against what has been composed so far
// then e.Var, which users cannot override.
// The result is sorted by key.
func (e *Env) Merge(overrides []string) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(overrides)+len(e.Var))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		m[k] = v
	}
	for _, kv := range overrides {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = expand(kv[i+1:], m)
		}
	}
	for k, v := range e.Var {
		m[k] = v
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

func parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string { return m[k] })
}

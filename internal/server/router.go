package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/patiently/internal/metrics"
	"github.com/loykin/patiently/internal/monitor"
	"github.com/loykin/patiently/internal/queue"
)

// Router provides read-only HTTP handlers over a queue directory.
// Endpoints:
//   GET {basePath}/status      latest monitor tally
//   GET {basePath}/jobs        records with effective status; query: status=...
//   GET {basePath}/jobs/:id    one record and its owner
//   GET /metrics               Prometheus exposition
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	store    *queue.Store
	tally    TallySource
	basePath string
}

// TallySource supplies the most recent tally, usually a *monitor.Monitor.
type TallySource interface {
	Snapshot() monitor.Tally
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/q" results in /q/status, /q/jobs.
func NewRouter(store *queue.Store, tally TallySource, basePath string) *Router {
	return &Router{store: store, tally: tally, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/jobs", r.handleJobs)
	group.GET("/jobs/:id", r.handleJob)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Close or Shutdown the returned server to stop it.
func NewServer(addr string, r *Router) (*http.Server, error) {
	if addr == "" {
		return nil, errors.New("listen address is empty")
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type statusResp struct {
	Counts      map[string]int `json:"counts"`
	Outstanding int            `json:"outstanding"`
}

type jobResp struct {
	ID        int    `json:"id"`
	Status    string `json:"status"`
	Effective string `json:"effective"`
	PID       int    `json:"pid,omitempty"`
	StartUnix int64  `json:"start_unix,omitempty"`
	Command   string `json:"command,omitempty"`
}

func (r *Router) handleStatus(c *gin.Context) {
	t := r.tally.Snapshot()
	resp := statusResp{Counts: make(map[string]int, len(queue.Statuses)), Outstanding: t.Outstanding()}
	for _, st := range queue.Statuses {
		resp.Counts[st.String()] = t[st]
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleJobs(c *gin.Context) {
	var filter queue.Status
	if s := c.Query("status"); s != "" {
		st, err := queue.ParseStatus(s)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		filter = st
	}
	records, err := r.store.List()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	out := make([]jobResp, 0, len(records))
	for _, rec := range records {
		eff := r.store.Inspect(rec)
		if filter != "" && eff != filter {
			continue
		}
		out = append(out, jobResp{ID: rec.ID, Status: rec.Status.String(), Effective: eff.String()})
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleJob(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "id must be a non-negative integer"})
		return
	}
	rec, err := r.store.Lookup(id)
	if errors.Is(err, queue.ErrNotFound) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	resp := jobResp{ID: rec.ID, Status: rec.Status.String(), Effective: r.store.Inspect(rec).String()}
	if o, err := r.store.Owner(rec); err == nil {
		resp.PID, resp.StartUnix, resp.Command = o.PID, o.StartUnix, o.Command
	}
	writeJSON(c, http.StatusOK, resp)
}

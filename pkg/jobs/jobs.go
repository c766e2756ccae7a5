// Package jobs implements C6, the in-memory ingestion job registry:
// pending → processing → {completed | failed}, with a terminal-state
// guard and TTL-based eviction mirroring pkg/session's sweep design.
package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress is the small per-job progress payload C7 reports through.
type Progress struct {
	Percent int
	Message string
}

// Job is a snapshot of one ingestion job's state.
type Job struct {
	ID         string
	UserID     string
	Status     Status
	Progress   Progress
	ReportID   string // set once a report row exists
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type record struct {
	mu  sync.Mutex
	job Job
}

// Metrics exposes the prometheus.GaugeVec the /metrics endpoint serves:
// promauto-registered vectors created once at construction.
type Metrics struct {
	ByStatus *prometheus.GaugeVec
}

// NewMetrics registers the jobs-by-status gauge with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		ByStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "labtrace_ingestion_jobs",
				Help: "Current number of ingestion jobs by status",
			},
			[]string{"status"},
		),
	}
}

// Manager is the in-memory job registry. TTL governs how long a terminal
// job remains lookup-able before Sweep evicts it.
type Manager struct {
	ttl     time.Duration
	metrics *Metrics

	mu   sync.RWMutex
	jobs map[string]*record
}

// NewManager creates a job manager. metrics may be nil in tests.
func NewManager(ttl time.Duration, metrics *Metrics) *Manager {
	return &Manager{ttl: ttl, metrics: metrics, jobs: make(map[string]*record)}
}

// Create starts a new job in the pending state.
func (m *Manager) Create(userID string) *Job {
	now := time.Now()
	j := Job{ID: uuid.NewString(), UserID: userID, Status: StatusPending, CreatedAt: now, UpdatedAt: now}

	m.mu.Lock()
	m.jobs[j.ID] = &record{job: j}
	m.mu.Unlock()

	m.refreshMetrics()
	return &j
}

// Get returns a copy of the job, or false if unknown or evicted.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.RLock()
	r, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return Job{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job, true
}

// SetProgress updates a job's progress payload. A no-op once the job has
// reached a terminal state — a late async progress update must never
// resurrect a finished job.
func (m *Manager) SetProgress(id string, percent int, message string) {
	m.mu.RLock()
	r, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.job.Status.terminal() {
		return
	}
	r.job.Status = StatusProcessing
	r.job.Progress = Progress{Percent: percent, Message: message}
	r.job.UpdatedAt = time.Now()
}

// Complete transitions a job to completed with the resulting report id.
// Ignored if the job is already terminal.
func (m *Manager) Complete(id, reportID string) error {
	return m.finish(id, StatusCompleted, reportID, "")
}

// Fail transitions a job to failed with an error message. Ignored if the
// job is already terminal — a late failure must not clobber an earlier
// success.
func (m *Manager) Fail(id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return m.finish(id, StatusFailed, "", msg)
}

func (m *Manager) finish(id string, status Status, reportID, errMsg string) error {
	m.mu.RLock()
	r, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.job.Status.terminal() {
		return nil
	}
	r.job.Status = status
	r.job.ReportID = reportID
	r.job.Error = errMsg
	r.job.UpdatedAt = time.Now()

	m.refreshMetrics()
	return nil
}

// Sweep evicts terminal jobs whose last update is older than the TTL.
func (m *Manager) Sweep() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	for id, r := range m.jobs {
		r.mu.Lock()
		expired := r.job.Status.terminal() && r.job.UpdatedAt.Before(cutoff)
		r.mu.Unlock()
		if expired {
			delete(m.jobs, id)
		}
	}
	m.mu.Unlock()

	m.refreshMetrics()
}

func (m *Manager) refreshMetrics() {
	if m.metrics == nil {
		return
	}
	counts := map[Status]int{}
	m.mu.RLock()
	for _, r := range m.jobs {
		r.mu.Lock()
		counts[r.job.Status]++
		r.mu.Unlock()
	}
	m.mu.RUnlock()

	for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed} {
		m.metrics.ByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

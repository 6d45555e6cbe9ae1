package async

import (
	"sync"
	"time"
)

// Stage names the phase a long-running rebuild is in.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageLoading   Stage = "loading"
	StageEmbedding Stage = "embedding"
	StageSaving    Stage = "saving"
	StageReady     Stage = "ready"
	StageError     Stage = "error"
)

// Progress tracks a reindex run so CLI and status surfaces can report
// it without holding engine locks. All methods are safe for concurrent
// use.
type Progress struct {
	mu        sync.RWMutex
	stage     Stage
	total     int
	processed int
	failed    int
	startedAt time.Time
	err       error
}

// NewProgress returns an idle tracker.
func NewProgress() *Progress {
	return &Progress{stage: StageIdle}
}

// Begin resets counters and enters the loading stage.
func (p *Progress) Begin(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = StageLoading
	p.total = total
	p.processed = 0
	p.failed = 0
	p.startedAt = time.Now()
	p.err = nil
}

// SetStage moves the tracker to the given stage.
func (p *Progress) SetStage(s Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = s
}

// SetTotal updates the expected item count once it is known.
func (p *Progress) SetTotal(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = n
}

// Step records one processed item, counting it as failed when ok is
// false.
func (p *Progress) Step(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
	if !ok {
		p.failed++
	}
}

// SetError records a terminal failure.
func (p *Progress) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = StageError
	p.err = err
}

// SetReady marks the run complete.
func (p *Progress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = StageReady
}

// Snapshot is a point-in-time copy of the tracker.
type Snapshot struct {
	Stage     Stage         `json:"stage"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
	Err       error         `json:"-"`
}

// Snapshot returns the current state without blocking writers for long.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var elapsed time.Duration
	if !p.startedAt.IsZero() {
		elapsed = time.Since(p.startedAt)
	}
	return Snapshot{
		Stage:     p.stage,
		Total:     p.total,
		Processed: p.processed,
		Failed:    p.failed,
		Elapsed:   elapsed,
		Err:       p.err,
	}
}

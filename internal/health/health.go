package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Michaelvilleneuve/windviz-go/internal/metrics"
	"github.com/Michaelvilleneuve/windviz-go/internal/query"
	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"
)

type Checker interface {
	CheckHealth(ctx context.Context) (bool, error)
}

// Status is the outcome of the most recent completed probe. Checked is false
// until the first probe completes.
type Status struct {
	Checked   bool      `json:"checked"`
	Up        bool      `json:"up"`
	LastCheck time.Time `json:"lastCheck,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Prober polls the backend on a fixed interval. A probe still running when
// the next one starts is cancelled; failures are recorded, never returned.
type Prober struct {
	checker  Checker
	interval time.Duration
	now      func() time.Time
	onChange func(Status)

	status *atomic.Pointer[Status]

	mu   sync.Mutex
	op   query.Op
	cron *cron.Cron
}

func NewProber(checker Checker, interval time.Duration, onChange func(Status)) *Prober {
	return &Prober{
		checker:  checker,
		interval: interval,
		now:      time.Now,
		onChange: onChange,
		status:   atomic.NewPointer(&Status{}),
	}
}

func (p *Prober) Status() Status {
	return *p.status.Load()
}

// Start probes once immediately, then every interval until ctx is done or
// Stop is called.
func (p *Prober) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", p.interval), func() { p.Probe(ctx) }); err != nil {
		return fmt.Errorf("scheduling health probe: %w", err)
	}

	p.mu.Lock()
	p.cron = c
	p.mu.Unlock()

	go p.Probe(ctx)
	c.Start()

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

func (p *Prober) Stop() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.op.Cancel(context.Canceled)
	p.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// Probe runs a single health check and records its outcome unless a newer
// probe superseded it meanwhile.
func (p *Prober) Probe(ctx context.Context) {
	p.mu.Lock()
	reqCtx, token := p.op.Start(ctx)
	p.mu.Unlock()

	up, err := p.checker.CheckHealth(reqCtx)

	p.mu.Lock()
	current := p.op.Finish(token)
	p.mu.Unlock()
	if !current || query.IsCancelled(err) {
		return
	}

	status := Status{Checked: true, Up: up && err == nil, LastCheck: p.now()}
	if err != nil {
		status.Error = err.Error()
		slog.Warn("health probe failed", "error", err)
	}
	p.status.Store(&status)
	metrics.SetBackendUp(status.Up)

	if p.onChange != nil {
		p.onChange(status)
	}
}

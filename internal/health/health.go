package health

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

type checkFunc struct {
	name string
	fn   func(context.Context) error
}

func (c checkFunc) Name() string                    { return c.name }
func (c checkFunc) Check(ctx context.Context) error { return c.fn(ctx) }

func NewCheck(name string, fn func(context.Context) error) Checker {
	return checkFunc{name: name, fn: fn}
}

type CheckResult struct {
	Name       string `json:"name"`
	Healthy    bool   `json:"healthy"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// ProbeRunner runs readiness checks concurrently. Each check gets perCheck; the whole probe gets
// timeout. Once draining, the probe reports unready without running checks.
type ProbeRunner struct {
	timeout  time.Duration
	perCheck time.Duration
	checkers []Checker
	draining atomic.Bool
}

func NewProbeRunner(timeout, perCheck time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if perCheck <= 0 || perCheck > timeout {
		perCheck = timeout
	}
	return &ProbeRunner{timeout: timeout, perCheck: perCheck, checkers: checkers}
}

func (p *ProbeRunner) SetDraining() { p.draining.Store(true) }

func (p *ProbeRunner) Draining() bool { return p.draining.Load() }

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	if p.Draining() {
		return false, []CheckResult{{Name: "draining", Healthy: false, Error: "shutting down"}}
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results := make([]CheckResult, len(p.checkers))
	var g errgroup.Group
	for i, c := range p.checkers {
		g.Go(func() error {
			results[i] = p.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	ready := true
	for _, r := range results {
		if !r.Healthy {
			ready = false
		}
	}
	return ready, results
}

func (p *ProbeRunner) run(ctx context.Context, c Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, p.perCheck)
	defer cancel()
	start := time.Now()
	err := c.Check(ctx)
	res := CheckResult{Name: c.Name(), Healthy: err == nil, DurationMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

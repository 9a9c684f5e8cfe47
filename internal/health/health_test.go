package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
)

type fakeChecker struct {
	mu    sync.Mutex
	up    bool
	err   error
	calls int
	block chan struct{}
}

func (f *fakeChecker) CheckHealth(ctx context.Context) (bool, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	up, err := f.up, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return up, err
}

func TestProbeRecordsStatus(t *testing.T) {
	is := is.New(t)

	checkedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var seen []Status

	f := &fakeChecker{up: true}
	p := NewProber(f, 10*time.Second, func(s Status) { seen = append(seen, s) })
	p.now = func() time.Time { return checkedAt }

	is.True(!p.Status().Checked)

	p.Probe(context.Background())
	is.True(p.Status().Up)
	is.Equal(p.Status().LastCheck, checkedAt)

	f.err = errors.New("connection refused")
	p.Probe(context.Background())
	is.True(!p.Status().Up)
	is.Equal(p.Status().Error, "connection refused")
	is.Equal(len(seen), 2)
}

func TestUnhealthyResponseIsDown(t *testing.T) {
	is := is.New(t)

	p := NewProber(&fakeChecker{up: false}, 10*time.Second, nil)
	p.Probe(context.Background())
	is.True(p.Status().Checked)
	is.True(!p.Status().Up)
	is.Equal(p.Status().Error, "")
}

func TestSupersededProbeIsDropped(t *testing.T) {
	is := is.New(t)

	f := &fakeChecker{up: true, block: make(chan struct{})}
	p := NewProber(f, 10*time.Second, nil)

	done := make(chan struct{})
	go func() {
		p.Probe(context.Background())
		close(done)
	}()

	for {
		f.mu.Lock()
		calls := f.calls
		f.mu.Unlock()
		if calls == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	f.mu.Lock()
	f.block = nil
	f.mu.Unlock()
	p.Probe(context.Background())
	<-done

	is.True(p.Status().Up) // the cancelled first probe did not record "down"
	is.Equal(f.calls, 2)
}

func TestStartProbesImmediately(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewProber(&fakeChecker{up: true}, time.Hour, nil)
	is.NoErr(p.Start(ctx))

	deadline := time.Now().Add(2 * time.Second)
	for !p.Status().Checked && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	is.True(p.Status().Up)
	p.Stop()
}

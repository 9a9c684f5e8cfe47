package animation

import (
	"fmt"
	"time"

	"github.com/Michaelvilleneuve/windviz-go/internal/weather"
)

const DEFAULT_SPEED = 1.0

var ALLOWED_SPEEDS = []float64{0.5, 1, 2, 4}

func ValidSpeed(speed float64) bool {
	for _, allowed := range ALLOWED_SPEEDS {
		if allowed == speed {
			return true
		}
	}
	return false
}

// Scheduler advances a playback index over a series of count timesteps.
// Time is accumulated from the instants passed to Tick, so the advance rate
// follows the wall clock whatever the tick cadence is. It is not safe for
// concurrent use; the session loop owns it.
type Scheduler struct {
	count    int
	index    int
	speed    float64
	interval int

	playing bool
	blocked bool

	last    time.Time
	elapsed time.Duration
}

func New() *Scheduler {
	return &Scheduler{speed: DEFAULT_SPEED, interval: 60}
}

func (s *Scheduler) CurrentIndex() int { return s.index }
func (s *Scheduler) Count() int        { return s.count }
func (s *Scheduler) Speed() float64    { return s.speed }
func (s *Scheduler) Interval() int     { return s.interval }
func (s *Scheduler) Playing() bool     { return s.playing }

// Enabled reports whether ticks currently advance the index: playing, not
// blocked by an in-flight query, and with something to play.
func (s *Scheduler) Enabled() bool {
	return s.playing && !s.blocked && s.count > 0
}

// StepDuration is the wall-clock time between two advances.
func (s *Scheduler) StepDuration() time.Duration {
	return time.Duration(float64(time.Second) / s.speed)
}

func (s *Scheduler) stop() {
	s.last = time.Time{}
	s.elapsed = 0
}

// Tick accounts for the time since the previous tick and advances the index
// by the number of whole steps that fit. It reports whether the index moved.
func (s *Scheduler) Tick(now time.Time) bool {
	if !s.Enabled() {
		s.stop()
		return false
	}
	if s.last.IsZero() {
		s.last = now
		return false
	}

	delta := now.Sub(s.last)
	s.last = now
	if delta <= 0 {
		return false
	}
	s.elapsed += delta

	step := s.StepDuration()
	steps := int(s.elapsed / step)
	if steps == 0 {
		return false
	}
	s.elapsed -= time.Duration(steps) * step
	s.index = (s.index + steps) % s.count
	return true
}

func (s *Scheduler) SetPlaying(playing bool) {
	s.playing = playing
	if !s.Enabled() {
		s.stop()
	}
}

// SetBlocked pauses advancing while a query is in flight without changing the
// playing state.
func (s *Scheduler) SetBlocked(blocked bool) {
	s.blocked = blocked
	if !s.Enabled() {
		s.stop()
	}
}

func (s *Scheduler) SetSpeed(speed float64) error {
	if !ValidSpeed(speed) {
		return fmt.Errorf("unsupported playback speed %v, expected one of %v", speed, ALLOWED_SPEEDS)
	}
	s.speed = speed
	return nil
}

// SetCount installs a new series length. An index past the end restarts at 0.
func (s *Scheduler) SetCount(count int) {
	if count < 0 {
		count = 0
	}
	s.count = count
	if s.index >= count {
		s.index = 0
	}
	if !s.Enabled() {
		s.stop()
	}
}

// SetCurrentIndex overrides the index. Any partially elapsed step is dropped
// so the next advance happens a full step later.
func (s *Scheduler) SetCurrentIndex(index int) error {
	if index < 0 || (s.count > 0 && index >= s.count) || (s.count == 0 && index != 0) {
		return fmt.Errorf("index %d out of range for %d timesteps", index, s.count)
	}
	s.index = index
	s.elapsed = 0
	return nil
}

// SetInterval changes the interpolation granularity, which renumbers the
// series, so the index restarts at 0.
func (s *Scheduler) SetInterval(minutes int) error {
	if !weather.ValidInterval(minutes) {
		return fmt.Errorf("unsupported interval %d minutes, expected one of %v", minutes, weather.ALLOWED_INTERVALS)
	}
	if minutes != s.interval {
		s.interval = minutes
		s.index = 0
		s.elapsed = 0
	}
	return nil
}

// Reset pauses playback and rewinds to the first timestep.
func (s *Scheduler) Reset() {
	s.playing = false
	s.index = 0
	s.stop()
}

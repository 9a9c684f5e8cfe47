package weather

import (
	"fmt"
	"math"
	"time"
)

// Intervals offered for playback granularity, in minutes.
var ALLOWED_INTERVALS = []int{60, 30, 15}

func ValidInterval(minutes int) bool {
	for _, allowed := range ALLOWED_INTERVALS {
		if allowed == minutes {
			return true
		}
	}
	return false
}

// Interpolate refines an hourly series to intervalMinutes steps. Every hourly
// point is kept and followed by the synthesized points up to, but excluding,
// the next hour. Nothing is extrapolated after the last hourly point.
func Interpolate(hourly []Timestep, intervalMinutes int) ([]Timestep, error) {
	if intervalMinutes == 60 || len(hourly) == 0 {
		return hourly, nil
	}
	if intervalMinutes <= 0 || intervalMinutes > 60 || 60%intervalMinutes != 0 {
		return nil, fmt.Errorf("interval of %d minutes does not divide an hour", intervalMinutes)
	}

	stepsPerHour := 60 / intervalMinutes
	result := make([]Timestep, 0, len(hourly)*stepsPerHour)

	for i, current := range hourly {
		current.Timestep = len(result)
		result = append(result, current)

		if i+1 >= len(hourly) {
			break
		}
		next := hourly[i+1]

		for step := 1; step < stepsPerHour; step++ {
			t := float64(step) / float64(stepsPerHour)
			datetime := current.Datetime.Add(time.Duration(step*intervalMinutes) * time.Minute).UTC()

			result = append(result, Timestep{
				Timestep: len(result),
				Datetime: datetime,
				Label:    datetime.Format(LABEL_LAYOUT),
				WSRef:    current.WSRef + (next.WSRef-current.WSRef)*t,
				WDRef:    InterpolateDirection(current.WDRef, next.WDRef, t),
			})
		}
	}

	return result, nil
}

// InterpolateDirection moves from one bearing to another along the shorter
// arc and returns a bearing in [0, 360).
func InterpolateDirection(from, to, t float64) float64 {
	diff := to - from
	if diff > 180 {
		diff -= 360
	} else if diff <= -180 {
		diff += 360
	}

	wd := math.Mod(from+diff*t, 360)
	if wd < 0 {
		wd += 360
	}
	if wd >= 360 {
		wd -= 360
	}
	return wd
}

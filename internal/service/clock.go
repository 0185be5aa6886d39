package service

import (
	"context"
	"log/slog"
	"time"
)

// clockSample is one wall-clock reading. mono keeps the monotonic reading
// so elapsed real time can be compared with elapsed wall time.
type clockSample struct {
	wall   time.Time
	mono   time.Time
	loc    *time.Location
	zone   string
	offset int
}

type clockSampler func() clockSample

// newClockSampler re-resolves the zone on every sample.
func newClockSampler(now func() time.Time, zone func() *time.Location) clockSampler {
	return func() clockSample {
		mono := time.Now()
		loc := zone()
		wall := now().In(loc)
		abbr, offset := wall.Zone()
		return clockSample{wall: wall.Round(0), mono: mono, loc: loc, zone: loc.String() + "/" + abbr, offset: offset}
	}
}

// clockChange reports why the clock moved between two samples, or "" when
// it did not move beyond tolerance.
func clockChange(prev, cur clockSample, tolerance time.Duration) string {
	if prev.zone != cur.zone || prev.offset != cur.offset {
		return "zone_change"
	}
	wallElapsed := cur.wall.Sub(prev.wall)
	realElapsed := cur.mono.Sub(prev.mono)
	drift := wallElapsed - realElapsed
	if drift < 0 {
		drift = -drift
	}
	if drift > tolerance {
		return "clock_change"
	}
	return ""
}

func (s *Service) watchClock(ctx context.Context, sample clockSampler) {
	ticker := time.NewTicker(s.clockEvery)
	defer ticker.Stop()
	prev := sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := sample()
			if reason := clockChange(prev, cur, s.skewTolerance); reason != "" {
				s.logger.WarnContext(ctx, "clock moved, re-registering reminders",
					slog.String("reason", reason),
					slog.String("zone", cur.zone),
					slog.Time("wall", cur.wall),
				)
				if reason == "zone_change" && cur.loc != nil {
					s.setLocation(cur.loc)
				}
				s.Recover(ctx, reason)
			}
			prev = cur
		}
	}
}

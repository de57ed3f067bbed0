// internal/browser/humanoid/scrolling.go
package humanoid

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"go.uber.org/zap"
)

// scrollMetricsJS reports {scrollHeight, viewportHeight, scrollY}.
//
//go:embed scroll_metrics.js
var scrollMetricsJS string

// scrollStepJS takes (mode, top, smooth): mode "to" jumps to an absolute
// offset, mode "by" moves relative to the current one.
//
//go:embed scroll_step.js
var scrollStepJS string

const (
	stepModeTo = "to"
	stepModeBy = "by"
)

// ScrollRequest is the fixed argument schema for one scroll step. Nil ranges
// fall back to the Humanoid's configuration.
type ScrollRequest struct {
	Strategy      schemas.ScrollStrategy
	Target        schemas.ScrollTarget
	WheelDistance *schemas.Range
	WheelInterval *schemas.Range
}

// RequestFromStep converts a scrollPage payload.
func RequestFromStep(cfg *schemas.ScrollPageConfig) ScrollRequest {
	return ScrollRequest{
		Strategy:      cfg.Strategy,
		Target:        cfg.Target,
		WheelDistance: cfg.WheelDistanceRange,
		WheelInterval: cfg.WheelIntervalRange,
	}
}

// ScrollReport summarises a finished scroll.
type ScrollReport struct {
	Extent   int
	Ticks    int
	Distance int
	Paused   time.Duration
}

type scrollMetrics struct {
	ScrollHeight   int `json:"scrollHeight"`
	ViewportHeight int `json:"viewportHeight"`
	ScrollY        int `json:"scrollY"`
}

// extent is the total scrollable distance of the document.
func (m scrollMetrics) extent() int {
	if h := m.ScrollHeight - m.ViewportHeight; h > 0 {
		return h
	}
	return 0
}

// Scroll runs one scroll step and returns once it is complete. A failing
// script means the page context is gone; the error is returned unchanged in
// kind so the caller can abort.
func (h *Humanoid) Scroll(ctx context.Context, req ScrollRequest) (ScrollReport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch req.Target {
	case schemas.TargetTop, schemas.TargetBottom:
	default:
		return ScrollReport{}, fmt.Errorf("unknown scroll target %q", req.Target)
	}

	switch req.Strategy {
	case schemas.ScrollPosition:
		return h.positionScroll(ctx, req.Target)
	case schemas.ScrollWheel:
		distance, pause := h.config.WheelDistance, h.config.WheelInterval
		if req.WheelDistance != nil {
			distance = *req.WheelDistance
		}
		if req.WheelInterval != nil {
			pause = *req.WheelInterval
		}
		if !distance.Valid() || distance.Min == 0 {
			return ScrollReport{}, fmt.Errorf("invalid wheel distance range [%d,%d]", distance.Min, distance.Max)
		}
		if !pause.Valid() {
			return ScrollReport{}, fmt.Errorf("invalid wheel interval range [%d,%d]", pause.Min, pause.Max)
		}
		return h.wheelScroll(ctx, req.Target, distance, pause)
	}
	return ScrollReport{}, fmt.Errorf("unknown scroll strategy %q", req.Strategy)
}

// positionScroll jumps straight to offset 0 or to the end of the document.
func (h *Humanoid) positionScroll(ctx context.Context, target schemas.ScrollTarget) (ScrollReport, error) {
	m, err := h.readMetrics(ctx)
	if err != nil {
		return ScrollReport{}, err
	}
	offset := 0
	if target == schemas.TargetBottom {
		offset = m.extent()
	}
	if err := h.scrollStep(ctx, stepModeTo, offset, h.config.SmoothPosition); err != nil {
		return ScrollReport{}, err
	}
	h.logger.Debug("Position scroll complete", zap.String("target", string(target)), zap.Int("offset", offset))
	return ScrollReport{Extent: m.extent(), Ticks: 1, Distance: offset}, nil
}

// wheelScroll advances in ticks of random length until the traversed distance
// covers the document's scrollable extent. The final offset may overshoot or
// undershoot the extreme by up to one tick.
func (h *Humanoid) wheelScroll(ctx context.Context, target schemas.ScrollTarget, distance, pause schemas.Range) (ScrollReport, error) {
	m, err := h.readMetrics(ctx)
	if err != nil {
		return ScrollReport{}, err
	}
	report := ScrollReport{Extent: m.extent()}
	if report.Extent == 0 {
		return report, nil
	}

	direction := 1
	if target == schemas.TargetTop {
		direction = -1
	}
	// Every tick moves at least distance.Min, so this bound is never the reason the loop ends early.
	maxTicks := (report.Extent + distance.Min - 1) / distance.Min

	for report.Distance < report.Extent && report.Ticks < maxTicks {
		if report.Ticks > 0 {
			d := h.rng.Millis(pause)
			if err := h.executor.Sleep(ctx, d); err != nil {
				return report, err
			}
			report.Paused += d
		}
		delta := h.rng.UniformRange(distance)
		if err := h.scrollStep(ctx, stepModeBy, direction*delta, true); err != nil {
			return report, err
		}
		report.Ticks++
		report.Distance += delta
	}

	h.logger.Debug("Wheel scroll complete",
		zap.String("target", string(target)),
		zap.Int("extent", report.Extent),
		zap.Int("ticks", report.Ticks),
		zap.Int("distance", report.Distance),
	)
	return report, nil
}

func (h *Humanoid) readMetrics(ctx context.Context) (scrollMetrics, error) {
	raw, err := h.executor.ExecuteScript(ctx, scrollMetricsJS, nil)
	if err != nil {
		return scrollMetrics{}, fmt.Errorf("javascript execution error reading scroll metrics: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return scrollMetrics{}, fmt.Errorf("scroll metrics script returned no result")
	}
	var m scrollMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return scrollMetrics{}, fmt.Errorf("failed to unmarshal scroll metrics: %w", err)
	}
	return m, nil
}

func (h *Humanoid) scrollStep(ctx context.Context, mode string, top int, smooth bool) error {
	if _, err := h.executor.ExecuteScript(ctx, scrollStepJS, []interface{}{mode, top, smooth}); err != nil {
		return fmt.Errorf("javascript execution error during scroll: %w", err)
	}
	return nil
}

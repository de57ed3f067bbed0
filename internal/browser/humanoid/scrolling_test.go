// FILE: ./internal/browser/humanoid/scrolling_test.go
package humanoid

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/interval"
)

func setupScrollingTest(t *testing.T, scrollHeight, viewportHeight int) (*Humanoid, *mockExecutor) {
	mock := newMockExecutor(t, scrollHeight, viewportHeight)
	return NewTestHumanoid(mock, 12345), mock
}

func wheelRequest(target schemas.ScrollTarget, d, i schemas.Range) ScrollRequest {
	return ScrollRequest{Strategy: schemas.ScrollWheel, Target: target, WheelDistance: &d, WheelInterval: &i}
}

func TestWheelScroll_TickBoundsAndRanges(t *testing.T) {
	// Extent H = 1000 once the viewport is subtracted.
	for seed := int64(1); seed <= 25; seed++ {
		mock := newMockExecutor(t, 1800, 800)
		h := NewTestHumanoid(mock, seed)

		report, err := h.Scroll(context.Background(), wheelRequest(schemas.TargetBottom,
			schemas.Range{Min: 50, Max: 100}, schemas.Range{Min: 100, Max: 200}))
		require.NoError(t, err)

		assert.Equal(t, 1000, report.Extent)
		assert.GreaterOrEqual(t, report.Ticks, 10, "seed %d", seed)
		assert.LessOrEqual(t, report.Ticks, 20, "seed %d", seed)
		assert.GreaterOrEqual(t, report.Distance, 1000)

		steps := mock.stepCalls()
		require.Len(t, steps, report.Ticks)
		for _, args := range steps {
			assert.Equal(t, stepModeBy, args[0])
			delta := args[1].(int)
			assert.GreaterOrEqual(t, delta, 50)
			assert.LessOrEqual(t, delta, 100)
			assert.Equal(t, true, args[2], "wheel ticks use browser easing")
		}

		pauses := mock.sleeps()
		require.Len(t, pauses, report.Ticks-1, "pauses only happen between ticks")
		for _, p := range pauses {
			assert.GreaterOrEqual(t, p, 100*time.Millisecond)
			assert.LessOrEqual(t, p, 200*time.Millisecond)
		}
		assert.Equal(t, 1000, mock.offset(), "page ends at the bottom")
	}
}

func TestWheelScroll_TopScrollsNegative(t *testing.T) {
	h, mock := setupScrollingTest(t, 3000, 1000)
	mock.scrollY = 2000

	report, err := h.Scroll(context.Background(), wheelRequest(schemas.TargetTop,
		schemas.Range{Min: 200, Max: 400}, schemas.Range{Min: 0, Max: 0}))
	require.NoError(t, err)

	for _, args := range mock.stepCalls() {
		assert.Less(t, args[1].(int), 0)
	}
	assert.GreaterOrEqual(t, report.Distance, 2000)
	assert.Equal(t, 0, mock.offset())
}

func TestWheelScroll_FixedDistanceIsExact(t *testing.T) {
	h, mock := setupScrollingTest(t, 1500, 1000)

	report, err := h.Scroll(context.Background(), wheelRequest(schemas.TargetBottom,
		schemas.Range{Min: 100, Max: 100}, schemas.Range{Min: 10, Max: 10}))
	require.NoError(t, err)

	assert.Equal(t, 5, report.Ticks)
	assert.Equal(t, 40*time.Millisecond, report.Paused)
	assert.Len(t, mock.stepCalls(), 5)
}

func TestWheelScroll_NothingToScroll(t *testing.T) {
	h, mock := setupScrollingTest(t, 600, 800)

	report, err := h.Scroll(context.Background(), wheelRequest(schemas.TargetBottom,
		schemas.Range{Min: 50, Max: 100}, schemas.Range{Min: 100, Max: 200}))
	require.NoError(t, err)
	assert.Zero(t, report.Ticks)
	assert.Empty(t, mock.stepCalls())
	assert.Empty(t, mock.sleeps())
}

func TestWheelScroll_DefaultsFromConfig(t *testing.T) {
	mock := newMockExecutor(t, 1300, 1000)
	cfg := Config{WheelDistance: schemas.Range{Min: 30, Max: 30}, WheelInterval: schemas.Range{Min: 7, Max: 7}}
	h := New(cfg, zap.NewNop(), mock, interval.New(1))

	report, err := h.Scroll(context.Background(), ScrollRequest{Strategy: schemas.ScrollWheel, Target: schemas.TargetBottom})
	require.NoError(t, err)
	assert.Equal(t, 10, report.Ticks)
	for _, p := range mock.sleeps() {
		assert.Equal(t, 7*time.Millisecond, p)
	}
}

func TestWheelScroll_InvalidRanges(t *testing.T) {
	h, _ := setupScrollingTest(t, 2000, 1000)

	_, err := h.Scroll(context.Background(), wheelRequest(schemas.TargetBottom,
		schemas.Range{Min: 0, Max: 10}, schemas.Range{Min: 1, Max: 2}))
	assert.ErrorContains(t, err, "invalid wheel distance range")

	_, err = h.Scroll(context.Background(), wheelRequest(schemas.TargetBottom,
		schemas.Range{Min: 10, Max: 20}, schemas.Range{Min: 5, Max: 2}))
	assert.ErrorContains(t, err, "invalid wheel interval range")
}

func TestWheelScroll_PageUnreachableMidScroll(t *testing.T) {
	h, mock := setupScrollingTest(t, 5000, 1000)
	gone := errors.New("cannot find context with specified id")
	mock.returnErr = gone
	mock.failOnCall = 4

	report, err := h.Scroll(context.Background(), wheelRequest(schemas.TargetBottom,
		schemas.Range{Min: 100, Max: 200}, schemas.Range{Min: 1, Max: 2}))
	require.Error(t, err)
	assert.ErrorIs(t, err, gone)
	assert.Equal(t, 2, report.Ticks, "metrics plus two ticks succeed before the failure")
}

func TestWheelScroll_SleepCancellation(t *testing.T) {
	h, mock := setupScrollingTest(t, 5000, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sleeps atomic.Int32
	mock.MockSleep = func(ctx context.Context, d time.Duration) error {
		if sleeps.Add(1) == 3 {
			cancel()
		}
		return mock.DefaultSleep(ctx, d)
	}

	_, err := h.Scroll(ctx, wheelRequest(schemas.TargetBottom,
		schemas.Range{Min: 50, Max: 60}, schemas.Range{Min: 1, Max: 2}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPositionScroll(t *testing.T) {
	t.Run("bottom jumps to the extent", func(t *testing.T) {
		h, mock := setupScrollingTest(t, 4200, 700)
		report, err := h.Scroll(context.Background(), ScrollRequest{Strategy: schemas.ScrollPosition, Target: schemas.TargetBottom})
		require.NoError(t, err)

		steps := mock.stepCalls()
		require.Len(t, steps, 1)
		assert.Equal(t, []interface{}{stepModeTo, 3500, true}, steps[0])
		assert.Equal(t, 3500, mock.offset())
		assert.Equal(t, 1, report.Ticks)
		assert.Empty(t, mock.sleeps(), "position scroll has no pacing")
	})

	t.Run("top jumps to zero", func(t *testing.T) {
		h, mock := setupScrollingTest(t, 4200, 700)
		mock.scrollY = 1234
		h.config.SmoothPosition = false

		_, err := h.Scroll(context.Background(), ScrollRequest{Strategy: schemas.ScrollPosition, Target: schemas.TargetTop})
		require.NoError(t, err)
		assert.Equal(t, []interface{}{stepModeTo, 0, false}, mock.stepCalls()[0])
		assert.Equal(t, 0, mock.offset())
	})

	t.Run("metrics failure aborts", func(t *testing.T) {
		h, mock := setupScrollingTest(t, 4200, 700)
		mock.returnErr = errors.New("target closed")

		_, err := h.Scroll(context.Background(), ScrollRequest{Strategy: schemas.ScrollPosition, Target: schemas.TargetTop})
		assert.ErrorContains(t, err, "reading scroll metrics")
	})
}

func TestScroll_UnknownStrategyOrTarget(t *testing.T) {
	h, _ := setupScrollingTest(t, 2000, 1000)

	_, err := h.Scroll(context.Background(), ScrollRequest{Strategy: "fling", Target: schemas.TargetTop})
	assert.ErrorContains(t, err, "unknown scroll strategy")

	_, err = h.Scroll(context.Background(), ScrollRequest{Strategy: schemas.ScrollWheel, Target: "left"})
	assert.ErrorContains(t, err, "unknown scroll target")
}

func TestRequestFromStep(t *testing.T) {
	d := schemas.Range{Min: 1, Max: 2}
	step := schemas.ScrollByWheel(schemas.TargetBottom, &d, nil)
	req := RequestFromStep(step.ScrollPage)
	assert.Equal(t, schemas.ScrollWheel, req.Strategy)
	assert.Equal(t, schemas.TargetBottom, req.Target)
	assert.Equal(t, &d, req.WheelDistance)
	assert.Nil(t, req.WheelInterval)
}

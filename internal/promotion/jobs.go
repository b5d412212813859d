package promotion

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/shopify"
)

const (
	RefreshJobName  = "promotion_refresh"
	EvaluateJobName = "promotion_evaluate"
)

type infoFetcher interface {
	FetchPromotionInfo(ctx context.Context) (shopify.PromotionInfo, error)
}

// StateRecorder receives every evaluated promotion state.
type StateRecorder interface {
	RecordPromotion(active bool, effective, configured float64)
}

// RefreshJobParams configures the promotion refresh job.
type RefreshJobParams struct {
	Logger   *logger.Logger
	Fetcher  infoFetcher
	Tracker  *Tracker
	Location *time.Location
	// Interval between successful fetches. Zero fetches once and never again.
	Interval time.Duration
}

// NewRefreshJob constructs the job that pulls promotion info into the tracker.
func NewRefreshJob(params RefreshJobParams) (*RefreshJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Fetcher == nil {
		return nil, fmt.Errorf("promotion fetcher required")
	}
	if params.Tracker == nil {
		return nil, fmt.Errorf("promotion tracker required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	interval := params.Interval
	if interval < 0 {
		interval = 0
	}
	return &RefreshJob{
		logg:     params.Logger,
		fetcher:  params.Fetcher,
		tracker:  params.Tracker,
		loc:      loc,
		interval: interval,
		now:      time.Now,
	}, nil
}

// RefreshJob fetches the promotional config. The scheduler ticks faster than
// the refresh interval, so Run is a no-op until the interval has elapsed.
type RefreshJob struct {
	logg     *logger.Logger
	fetcher  infoFetcher
	tracker  *Tracker
	loc      *time.Location
	interval time.Duration
	now      func() time.Time

	lastSuccess time.Time
}

func (j *RefreshJob) Name() string { return RefreshJobName }

func (j *RefreshJob) Run(ctx context.Context) error {
	if !j.due() {
		return nil
	}
	info, err := j.fetcher.FetchPromotionInfo(ctx)
	if err != nil {
		return fmt.Errorf("fetch promotion info: %w", err)
	}
	window, err := ParseInfo(info, j.loc)
	if err != nil {
		return fmt.Errorf("parse promotion info: %w", err)
	}
	j.tracker.Set(window)
	j.lastSuccess = j.now()

	ctx = j.logg.WithFields(ctx, map[string]any{
		"multiplier": window.Multiplier.String(),
		"start_date": window.Start,
		"end_date":   window.End,
	})
	j.logg.Info(ctx, "promotion window refreshed")
	return nil
}

func (j *RefreshJob) due() bool {
	if j.lastSuccess.IsZero() {
		return true
	}
	if j.interval == 0 {
		return false
	}
	return j.now().Sub(j.lastSuccess) >= j.interval
}

// EvaluateJobParams configures the promotion evaluation job.
type EvaluateJobParams struct {
	Logger   *logger.Logger
	Tracker  *Tracker
	Recorder StateRecorder
}

// NewEvaluateJob constructs the job that re-checks the window against the clock.
func NewEvaluateJob(params EvaluateJobParams) (*EvaluateJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tracker == nil {
		return nil, fmt.Errorf("promotion tracker required")
	}
	return &EvaluateJob{
		logg:     params.Logger,
		tracker:  params.Tracker,
		recorder: params.Recorder,
	}, nil
}

type EvaluateJob struct {
	logg     *logger.Logger
	tracker  *Tracker
	recorder StateRecorder
}

func (j *EvaluateJob) Name() string { return EvaluateJobName }

func (j *EvaluateJob) Run(ctx context.Context) error {
	state, changed := j.tracker.Evaluate()
	if j.recorder != nil {
		j.recorder.RecordPromotion(state.Active, state.EffectiveMultiplier.InexactFloat64(), state.Multiplier.InexactFloat64())
	}
	if !changed {
		return nil
	}
	ctx = j.logg.WithFields(ctx, map[string]any{
		"multiplier": state.Multiplier.String(),
		"start_date": state.StartDate,
		"end_date":   state.EndDate,
	})
	if state.Active {
		j.logg.Info(ctx, "promotion window opened")
	} else {
		j.logg.Info(ctx, "promotion window closed")
	}
	return nil
}

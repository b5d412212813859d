package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-core/pkg/logger"
)

const SweepJobName = "cart_engine_sweep"

// SweepJobParams configures idle engine eviction.
type SweepJobParams struct {
	Logger  *logger.Logger
	Manager *Manager
	IdleTTL time.Duration
}

// NewSweepJob constructs the cron job that evicts idle engines.
func NewSweepJob(params SweepJobParams) (*SweepJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Manager == nil {
		return nil, fmt.Errorf("cart manager required")
	}
	if params.IdleTTL <= 0 {
		return nil, fmt.Errorf("idle ttl must be positive")
	}
	return &SweepJob{logg: params.Logger, manager: params.Manager, idle: params.IdleTTL}, nil
}

type SweepJob struct {
	logg    *logger.Logger
	manager *Manager
	idle    time.Duration
}

func (j *SweepJob) Name() string { return SweepJobName }

func (j *SweepJob) Run(ctx context.Context) error {
	evicted := j.manager.Sweep(j.idle)
	if evicted == 0 {
		return nil
	}
	ctx = j.logg.WithFields(ctx, map[string]any{
		"evicted":   evicted,
		"remaining": j.manager.Len(),
	})
	j.logg.Info(ctx, "idle cart engines evicted")
	return nil
}

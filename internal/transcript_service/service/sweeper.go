package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bigballadanny/dwschatbot/internal/transcript_service/store"
	"github.com/bigballadanny/dwschatbot/internal/transcript_service/worker"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
)

// SweeperConfig wires the sweeper's collaborators and tuning.
type SweeperConfig struct {
	States     store.StateStore
	Pool       *worker.Pool
	Processor  *Processor
	Interval   time.Duration
	StuckAfter time.Duration
	MaxRetries int
	Logger     *logger.Logger
}

// Sweeper periodically scans for unfinished documents that stopped moving,
// either because a worker died holding a stage claim or because the trigger
// for an idle pipeline was lost. Each one is resubmitted to the pool until
// its rescue budget runs out, after which the stage is failed for good.
type Sweeper struct {
	states     store.StateStore
	pool       *worker.Pool
	processor  *Processor
	interval   time.Duration
	stuckAfter time.Duration
	maxRetries int
	log        *logger.Logger
}

// NewSweeper creates a Sweeper. Zero interval, threshold and budget get
// bounded defaults.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Sweeper{
		states:     cfg.States,
		pool:       cfg.Pool,
		processor:  cfg.Processor,
		interval:   cfg.Interval,
		stuckAfter: cfg.StuckAfter,
		maxRetries: cfg.MaxRetries,
		log:        cfg.Logger,
	}
}

// Start launches the sweep loop. It sweeps once right away so documents
// orphaned by a crashed worker are rescued without waiting a full interval,
// and stops when ctx is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info(fmt.Sprintf("Starting stuck-document sweeper (interval %s, threshold %s)", s.interval, s.stuckAfter))
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.sweep(ctx)
		for {
			select {
			case <-ctx.Done():
				s.log.Info("Stuck-document sweeper stopped")
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *Sweeper) sweep(ctx context.Context) {
	states, err := s.states.ListStuck(ctx, time.Now().Add(-s.stuckAfter))
	if err != nil {
		s.log.Error(fmt.Sprintf("Failed to list stuck documents: %v", err))
		return
	}
	if len(states) == 0 {
		return
	}
	s.log.Info(fmt.Sprintf("Found %d stuck documents", len(states)))

	for _, state := range states {
		stage := state.CurrentStage()
		st := state.Stage(stage)

		if st.Retries >= s.maxRetries {
			s.log.Warn(fmt.Sprintf("Document %s stage %s exhausted its rescue budget (%d retries)", state.DocumentID, stage, st.Retries))
			if err := s.processor.abandonStuck(ctx, state.DocumentID, stage, st.Retries); err != nil {
				s.log.Error(fmt.Sprintf("Failed to abandon stuck document %s: %v", state.DocumentID, err))
			}
			continue
		}

		documentID := state.DocumentID
		submitted := s.pool.TrySubmit(func(taskCtx context.Context) {
			if err := s.processor.Resume(taskCtx, documentID); err != nil {
				s.log.Error(fmt.Sprintf("Failed to resume stuck document %s: %v", documentID, err))
			}
		})
		if !submitted {
			// The queue is full; the next sweep picks this document up again.
			s.log.Warn(fmt.Sprintf("Worker queue is full, deferring rescue of document %s", documentID))
			continue
		}

		if err := s.states.IncrementRetries(ctx, documentID, stage); err != nil {
			s.log.Error(fmt.Sprintf("Failed to count rescue of document %s: %v", documentID, err))
		}
		s.log.Info(fmt.Sprintf("Resubmitted stuck document %s (stage %s, rescue %d)", documentID, stage, st.Retries+1))
	}
}

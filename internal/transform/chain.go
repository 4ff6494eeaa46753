// Package transform runs a unit through the sequential generative stages
// that edit, personalize, hook, polish and review it.
package transform

import (
	"context"
	"log/slog"
	"time"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/metrics"
	"github.com/abdulachik/recast/internal/validator"
)

// DefaultStageTimeout bounds one stage call.
const DefaultStageTimeout = 60 * time.Second

// Input is the read-only context shared by every stage of one unit.
type Input struct {
	Profile    content.Profile
	Newsletter string
	Section    content.Section
}

// Stage rewrites the text of a unit. Implementations may return any error;
// the chain reverts to the stage's input when they do.
type Stage interface {
	Name() string
	Apply(ctx context.Context, u content.Unit, in Input) (content.Unit, error)
}

// Skipper is implemented by stages that do not apply to every content type.
type Skipper interface {
	Skips(t content.Type) bool
}

// Chain applies stages in order with a shape guard after each one.
type Chain struct {
	stages  []Stage
	timeout time.Duration
	metrics *metrics.Metrics

	// OnStage, if set, is called before each stage that runs.
	OnStage func(stage string)
}

// ChainConfig holds configuration for a chain.
type ChainConfig struct {
	Stages  []Stage
	Timeout time.Duration
	Metrics *metrics.Metrics
}

// NewChain creates a Chain.
func NewChain(cfg ChainConfig) *Chain {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultStageTimeout
	}
	return &Chain{stages: cfg.Stages, timeout: timeout, metrics: cfg.Metrics}
}

// Run passes u through every stage. It never fails: a stage that errors,
// times out or changes the unit's shape leaves the unit as it was. A
// cancelled context stops the chain with the last good unit.
func (c *Chain) Run(ctx context.Context, u content.Unit, in Input) content.Unit {
	current := u.Clone()
	for _, stage := range c.stages {
		if ctx.Err() != nil {
			slog.Warn("transform chain cancelled", "stage", stage.Name(), "error", ctx.Err())
			return current
		}
		if s, ok := stage.(Skipper); ok && s.Skips(current.Type) {
			c.metrics.ObserveStage(stage.Name(), metrics.OutcomeSkipped, 0)
			continue
		}
		if c.OnStage != nil {
			c.OnStage(stage.Name())
		}
		current = c.apply(ctx, stage, current, in)
	}
	return current
}

func (c *Chain) apply(ctx context.Context, stage Stage, prev content.Unit, in Input) content.Unit {
	start := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := stage.Apply(stageCtx, prev.Clone(), in)
	if err != nil {
		slog.Warn("stage failed, keeping input",
			"stage", stage.Name(),
			"type", prev.Type,
			"post_number", prev.PostNumber,
			"error", err,
		)
		c.metrics.ObserveStage(stage.Name(), metrics.OutcomeReverted, time.Since(start))
		return prev
	}

	guarded, ok := Guard(prev, out)
	if !ok {
		slog.Warn("stage changed unit shape, keeping input",
			"stage", stage.Name(),
			"type", prev.Type,
			"items_in", len(prev.Items),
			"items_out", len(out.Items),
		)
		c.metrics.ObserveStage(stage.Name(), metrics.OutcomeReverted, time.Since(start))
		return prev
	}

	c.metrics.ObserveStage(stage.Name(), metrics.OutcomeOK, time.Since(start))
	return guarded
}

// Guard enforces that out has the same type and item roles as prev. On a
// match it returns prev with only the text fields taken from out, carousel
// budgets repaired. Fixed call-to-action items keep their text. On a
// mismatch it returns prev and false.
func Guard(prev, out content.Unit) (content.Unit, bool) {
	if !content.SameShape(prev, out) {
		return prev, false
	}
	rules := prev.Type.Rules()
	merged := prev.Clone()
	for i := range merged.Items {
		if rules.IsTail(merged.Items[i].PostType) {
			continue
		}
		merged.Items[i].Text = out.Items[i].Text
		merged.Items[i].Heading = out.Items[i].Heading
		merged.Items[i].Subheading = out.Items[i].Subheading
	}
	return validator.RepairCarousel(merged), true
}

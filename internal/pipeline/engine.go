package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/promptd/internal/pipeline"

// Stage is one unit of the pipeline.
type Stage interface {
	// Name identifies the stage in logs and traces.
	Name() string

	// Execute mutates the context, sets its response, or fails.
	Execute(ctx context.Context, ec *ExecutionContext) error

	// AlwaysRuns marks stages that execute even after a response is set.
	AlwaysRuns() bool
}

// Engine runs a statically ordered stage list over one context per request.
type Engine struct {
	stages []Stage
	logger *zap.Logger

	tracer       trace.Tracer
	meter        metric.Meter
	stageCounter metric.Int64Counter
}

// NewEngine creates an engine over the given ordered stages.
func NewEngine(stages []Stage, logger *zap.Logger) (*Engine, error) {
	if len(stages) == 0 {
		return nil, errors.New("at least one stage is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		stages: stages,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	e.initMetrics()
	return e, nil
}

func (e *Engine) initMetrics() {
	var err error
	e.stageCounter, err = e.meter.Int64Counter(
		"promptd.pipeline.stage_executions_total",
		metric.WithDescription("Stage executions by stage name and result"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		e.logger.Warn("failed to create stage counter", zap.Error(err))
	}
}

// Run executes the stages strictly in order. Once ec.Response is set, only
// always-run stages still execute. A failing stage fails the run; the error
// carries the stage name, and the engine performs no retry.
func (e *Engine) Run(ctx context.Context, ec *ExecutionContext) (*Response, error) {
	ctx, span := e.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	for _, stage := range e.stages {
		if ec.Response != nil && !stage.AlwaysRuns() {
			continue
		}

		if err := e.runStage(ctx, stage, ec); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
	}

	if ec.Response == nil {
		err := errors.New("pipeline produced no response")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("stages", len(e.stages)))
	return ec.Response, nil
}

func (e *Engine) runStage(ctx context.Context, stage Stage, ec *ExecutionContext) error {
	ctx, span := e.tracer.Start(ctx, "pipeline.stage."+stage.Name())
	defer span.End()

	start := time.Now()
	err := stage.Execute(ctx, ec)
	elapsed := time.Since(start)

	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		e.logger.Error("stage failed",
			zap.String("stage", stage.Name()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	} else {
		e.logger.Debug("stage completed",
			zap.String("stage", stage.Name()),
			zap.Duration("elapsed", elapsed),
		)
	}

	if e.stageCounter != nil {
		e.stageCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", stage.Name()),
			attribute.String("result", result),
		))
	}
	return err
}

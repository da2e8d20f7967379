// Package pipeline runs the station as a sequence of sessions: calibrate,
// sample one batch, reduce whatever is pending. Each stage reports a Result;
// only a Fatal result stops the driver.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gr-butler/weatherlog/archive"
	"github.com/gr-butler/weatherlog/batch"
	"github.com/gr-butler/weatherlog/calibration"
	"github.com/gr-butler/weatherlog/env"
	"github.com/prometheus/client_golang/prometheus"
	logger "github.com/sirupsen/logrus"
)

type Stage string

const (
	StageCalibrate Stage = "calibrate"
	StageSample    Stage = "sample"
	StageReduce    Stage = "reduce"
)

type Outcome int

const (
	Success Outcome = iota
	Skipped
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type Result struct {
	Stage   Stage
	Outcome Outcome
	Err     error
}

var Prom_stageResults = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_stage_results_total",
		Help: "Stage results by outcome",
	},
	[]string{"stage", "outcome"},
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{Prom_stageResults}
}

// Calibrator computes the session's calibration state.
type Calibrator func(ctx context.Context) (calibration.State, error)

type BatchRunner interface {
	RunBatch(ctx context.Context, cal calibration.State) (string, error)
}

type PendingReducer interface {
	ReducePending(ctx context.Context) archive.Summary
}

const DefaultBackoff = 10 * time.Second

type Driver struct {
	calibrate Calibrator
	batches   BatchRunner
	reducer   PendingReducer
	backoff   time.Duration
	lastGood  *calibration.State

	sleep func(ctx context.Context, d time.Duration) error
}

func NewDriver(cal Calibrator, batches BatchRunner, reducer PendingReducer) *Driver {
	return &Driver{
		calibrate: cal,
		batches:   batches,
		reducer:   reducer,
		backoff:   DefaultBackoff,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func report(r Result) Result {
	Prom_stageResults.WithLabelValues(string(r.Stage), r.Outcome.String()).Inc()
	switch r.Outcome {
	case Success:
		logger.Debugf("Stage [%v] ok", r.Stage)
	case Skipped:
		logger.Warnf("Stage [%v] skipped [%v]", r.Stage, r.Err)
	case Fatal:
		logger.Errorf("Stage [%v] failed [%v]", r.Stage, r.Err)
	}
	return r
}

// Session runs calibrate, sample and reduce once. A failed calibration falls
// back to the last good state, or the standard atmosphere before there is one.
func (d *Driver) Session(ctx context.Context) []Result {
	results := make([]Result, 0, 3)

	state, err := d.calibrate(ctx)
	if err != nil {
		if d.lastGood != nil {
			state = *d.lastGood
		} else {
			state = calibration.Fallback(env.StandardTempC, env.StandardSeaLevelhPa)
		}
		results = append(results, report(Result{Stage: StageCalibrate, Outcome: Skipped, Err: err}))
	} else {
		d.lastGood = &state
		results = append(results, report(Result{Stage: StageCalibrate, Outcome: Success}))
	}

	_, err = d.batches.RunBatch(ctx, state)
	switch {
	case err == nil:
		results = append(results, report(Result{Stage: StageSample, Outcome: Success}))
	case errors.Is(err, batch.ErrBatchIO):
		results = append(results, report(Result{Stage: StageSample, Outcome: Skipped, Err: err}))
	default:
		results = append(results, report(Result{Stage: StageSample, Outcome: Fatal, Err: err}))
		return results
	}

	sum := d.reducer.ReducePending(ctx)
	if sum.OK() {
		results = append(results, report(Result{Stage: StageReduce, Outcome: Success}))
	} else {
		results = append(results, report(Result{Stage: StageReduce, Outcome: Skipped, Err: joinFailures(sum)}))
	}
	return results
}

func joinFailures(sum archive.Summary) error {
	names := make([]string, 0, len(sum.Failed))
	for name := range sum.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	errs := make([]error, 0, len(names))
	for _, name := range names {
		errs = append(errs, fmt.Errorf("[%v]: %w", name, sum.Failed[name]))
	}
	return errors.Join(errs...)
}

// Run repeats sessions until ctx is cancelled or a stage is fatal. A skipped
// sampling stage waits out the backoff before the next session.
func (d *Driver) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		backoff := false
		for _, r := range d.Session(ctx) {
			if r.Outcome == Fatal {
				return fmt.Errorf("stage [%v]: %w", r.Stage, r.Err)
			}
			if r.Stage == StageSample && r.Outcome == Skipped {
				backoff = true
			}
		}
		if backoff {
			if err := d.sleep(ctx, d.backoff); err != nil {
				break
			}
		}
	}
	logger.Info("Pipeline stopped")
	return nil
}

// Package archive reduces completed batch files into minute-resolution
// records and files them away.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gr-butler/weatherlog/env"
	"github.com/gr-butler/weatherlog/record"
	"github.com/prometheus/client_golang/prometheus"
	logger "github.com/sirupsen/logrus"
)

// ErrReduction wraps every failure to reduce a batch file.
var ErrReduction = errors.New("reduction failed")

var Prom_batchesReduced = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "batches_reduced_total",
		Help: "Batch files reduced and moved to the archive",
	},
)

var Prom_reductionFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "batch_reduction_failures_total",
		Help: "Batch files left in pending after a failed reduction",
	},
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{Prom_batchesReduced, Prom_reductionFailures}
}

// Summary of one pass over the pending directory.
type Summary struct {
	Reduced []string
	Failed  map[string]error
}

func (s Summary) OK() bool {
	return len(s.Failed) == 0
}

type Reducer struct {
	paths env.PathConfig
	store MinuteStore
}

// NewReducer returns a reducer over paths. store may be nil.
func NewReducer(paths env.PathConfig, store MinuteStore) *Reducer {
	return &Reducer{paths: paths, store: store}
}

func (r *Reducer) pendingFiles() ([]string, error) {
	entries, err := os.ReadDir(r.paths.Pending)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ReducePending reduces every pending batch in name order. A file that fails
// stays in pending for the next pass and does not stop the others.
func (r *Reducer) ReducePending(ctx context.Context) Summary {
	sum := Summary{Failed: map[string]error{}}
	names, err := r.pendingFiles()
	if err != nil {
		sum.Failed[r.paths.Pending] = fmt.Errorf("%w: list pending: %v", ErrReduction, err)
		logger.Errorf("Unable to list pending batches [%v]", err)
		return sum
	}
	if len(names) == 0 {
		logger.Info("Nothing to reduce...")
		return sum
	}

	for i, name := range names {
		if ctx.Err() != nil {
			break
		}
		logger.Infof("Reducing [%d] of [%d] [%v]", i+1, len(names), name)
		if err := r.reduceFile(ctx, name); err != nil {
			logger.Errorf("Failed to reduce [%v] [%v]", name, err)
			Prom_reductionFailures.Inc()
			sum.Failed[name] = err
			continue
		}
		Prom_batchesReduced.Inc()
		sum.Reduced = append(sum.Reduced, name)
	}
	return sum
}

func (r *Reducer) reduceFile(ctx context.Context, name string) error {
	month, err := monthKey(name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReduction, err)
	}
	path := filepath.Join(r.paths.Pending, name)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open: %v", ErrReduction, err)
	}
	samples, err := record.ReadBatch(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("%w: parse [%v]: %v", ErrReduction, name, err)
	}

	converted := Convert(samples)
	minutes := ByMinute(converted)

	if r.store != nil {
		if err := r.store.UpsertMinutes(ctx, name, minutes); err != nil {
			return fmt.Errorf("%w: store: %v", ErrReduction, err)
		}
	}

	archiveRows := make([][]string, len(converted))
	for i, c := range converted {
		archiveRows[i] = c.ArchiveRow()
	}
	if err := appendRows(filepath.Join(r.paths.Archive, month+".csv"), archiveRows); err != nil {
		return fmt.Errorf("%w: archive: %v", ErrReduction, err)
	}

	currentRows := make([][]string, len(minutes))
	for i, m := range minutes {
		currentRows[i] = m.CurrentRow()
	}
	if err := appendRows(r.paths.Current, currentRows); err != nil {
		return fmt.Errorf("%w: current: %v", ErrReduction, err)
	}

	if err := os.MkdirAll(r.paths.Records(), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrReduction, err)
	}
	// an earlier batch of the same name is never overwritten
	target, err := freeName(r.paths.Records(), name)
	if err != nil {
		return fmt.Errorf("%w: relocate: %v", ErrReduction, err)
	}
	if err := os.Rename(path, filepath.Join(r.paths.Records(), target)); err != nil {
		return fmt.Errorf("%w: relocate: %v", ErrReduction, err)
	}
	if target != name {
		logger.Warnf("Batch [%v] already archived, kept as [%v]", name, target)
	}
	logger.Infof("Reduced [%v] samples [%d] minutes [%d]", name, len(samples), len(minutes))
	return nil
}

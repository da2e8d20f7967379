package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gr-butler/weatherlog/archive"
	"github.com/gr-butler/weatherlog/batch"
	"github.com/gr-butler/weatherlog/env"
	"github.com/gr-butler/weatherlog/pipeline"
	"github.com/gr-butler/weatherlog/publish"
	"github.com/gr-butler/weatherlog/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"
)

// called by prometheus
func init() {
	logger.Infof("%v: Initialize prometheus...", time.Now().Format(time.RFC822))
	prometheus.MustRegister(publish.Collectors()...)
	prometheus.MustRegister(batch.Collectors()...)
	prometheus.MustRegister(archive.Collectors()...)
	prometheus.MustRegister(pipeline.Collectors()...)
}

// latestSample keeps the most recent sample for the status page.
type latestSample struct {
	lock sync.Mutex
	s    record.RawSample
	ok   bool
}

func (l *latestSample) Publish(_ context.Context, s record.RawSample) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.s = s
	l.ok = true
	return nil
}

func (l *latestSample) Close() error {
	return nil
}

func (l *latestSample) handler(rw http.ResponseWriter, r *http.Request) {
	l.lock.Lock()
	s, ok := l.s, l.ok
	l.lock.Unlock()

	if !ok {
		http.Error(rw, "no sample yet", http.StatusServiceUnavailable)
		return
	}
	js, err := json.Marshal(s.Event())
	if err != nil {
		logger.Errorf("JSON error [%v]", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	logger.Debugf("Web read: [%v]", string(js))
	_, _ = rw.Write(js) // not much we can do if this fails
}

func startWebservice(cfg *env.Config, args env.Args, status *latestSample) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", status.handler)
	if cfg.SendProm && !*args.Test {
		logger.Info("Serving prometheus metrics")
		mux.Handle("/metrics", promhttp.Handler())
	}
	logger.Infof("Starting webservice on [%v]...", cfg.MetricsAddr)
	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Errorf("Webservice stopped [%v]", err)
		}
	}()
}

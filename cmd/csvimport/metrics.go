package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"csvimport/internal/metrics"
	"csvimport/internal/metrics/datadog"
	"csvimport/internal/metrics/prompush"
)

type metricsOptions struct {
	Backend        string
	PushGatewayURL string
	StatsdAddr     string
	Job            string
}

// setupMetrics installs the selected backend and returns a flush func to
// defer. Backend choice order: flag, METRICS_BACKEND, none. A backend that
// fails to initialise is logged and metrics stay disabled.
func setupMetrics(log logrus.FieldLogger, o metricsOptions) (func(), error) {
	name := o.Backend
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}

	var (
		b   metrics.Backend
		err error
	)
	switch name {
	case "", "none":
		log.Debug("metrics: disabled")
		return func() {}, nil

	case "pushgateway":
		url := firstNonEmpty(o.PushGatewayURL, os.Getenv("PUSHGATEWAY_URL"), "http://localhost:9091")
		b, err = prompush.NewBackend(o.Job, url)
		log = log.WithField("url", url)

	case "datadog":
		addr := firstNonEmpty(o.StatsdAddr, os.Getenv("DD_DOGSTATSD_URL"), "127.0.0.1:8125")
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "etl.",
			GlobalTags: []string{"job:" + o.Job},
		})
		log = log.WithField("addr", addr)

	default:
		return nil, fmt.Errorf("metrics: unknown backend %q (want none, pushgateway or datadog)", name)
	}
	if err != nil {
		log.WithError(err).Warn("metrics: backend init failed; metrics disabled")
		return func() {}, nil
	}

	metrics.SetBackend(b)
	log.WithField("backend", name).Info("metrics: enabled")
	return func() {
		if err := metrics.Flush(); err != nil {
			log.WithError(err).Warn("metrics: flush failed")
		}
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package file

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts operations by name and result status
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_file_operations_total",
		Help: "Total file operations by operation and status",
	}, []string{"op", "status"})

	// operationDuration tracks operation latency including formatting
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quill_file_operation_duration_seconds",
		Help:    "File operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3s
	}, []string{"op"})

	// thresholdExceededTotal counts results whose line count passed the limit
	thresholdExceededTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_file_threshold_exceeded_total",
		Help: "Operations that left a file above its line threshold",
	}, []string{"op"})

	// formatOutcomesTotal counts formatter runs by outcome
	formatOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_file_format_outcomes_total",
		Help: "Formatter runs by outcome",
	}, []string{"outcome"})
)

func recordOperation(op string, start time.Time, result *Result, err error) {
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	status := string(StatusError)
	if err == nil && result != nil {
		status = string(result.Status)
		if result.Threshold != nil && result.Threshold.Exceeded {
			thresholdExceededTotal.WithLabelValues(op).Inc()
		}
	}
	operationsTotal.WithLabelValues(op, status).Inc()
}

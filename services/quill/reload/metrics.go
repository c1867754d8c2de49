// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// reloadModulesTotal counts modules by reload outcome
	reloadModulesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_reload_modules_total",
		Help: "Total modules processed by the reload executor, by outcome",
	}, []string{"outcome"})

	// watcherEventsTotal counts file events that produced a pending module
	watcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quill_reload_watcher_events_total",
		Help: "File system events that marked a module as pending",
	})
)

func recordReport(r Report) {
	reloadModulesTotal.WithLabelValues("reloaded").Add(float64(len(r.Reloaded)))
	reloadModulesTotal.WithLabelValues("failed").Add(float64(len(r.Failed)))
	reloadModulesTotal.WithLabelValues("skipped").Add(float64(len(r.Skipped)))
}

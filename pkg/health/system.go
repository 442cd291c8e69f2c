// wsfabric - clustered WebSocket messaging framework
// Copyright (C) 2025 wsfabric contributors
//
// This file is part of wsfabric.
//
// wsfabric is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// wsfabric is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public
// License along with wsfabric. If not, see <https://www.gnu.org/licenses/>.

package health

import "runtime"

// Goroutine count thresholds used to flag a runaway connection/worker
// leak before it exhausts the process.
const (
	GoroutineThresholdDegraded  = 10000
	GoroutineThresholdUnhealthy = 50000
)

// CheckRuntime reports goroutine count and heap usage for the current
// process.
func CheckRuntime() *RuntimeHealth {
	h := &RuntimeHealth{Status: StatusHealthy}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	h.HeapAllocMB = m.Alloc / 1024 / 1024
	h.HeapSysMB = m.Sys / 1024 / 1024
	h.Goroutines = runtime.NumGoroutine()

	switch {
	case h.Goroutines >= GoroutineThresholdUnhealthy:
		h.Status = StatusUnhealthy
	case h.Goroutines >= GoroutineThresholdDegraded:
		h.Status = StatusDegraded
	}

	return h
}

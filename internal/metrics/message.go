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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsRouted tracks packets the Message Server has routed, by
	// route kind and outcome.
	PacketsRouted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "routed_total",
			Help:      "Total number of packets routed",
		},
		[]string{"kind", "status"}, // decode/validate/heartbeat/cluster/rmc/user, ok/error/unknown_route
	)

	// DuplicateRequestIDs tracks reqId replay detections (spec.md §3,
	// close code 4003).
	DuplicateRequestIDs = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "duplicate_reqid_total",
			Help:      "Total number of duplicate reqId closures",
		},
	)

	// ClusterSignatureFailures tracks inner-envelope MD5 signature
	// mismatches (close code 4004).
	ClusterSignatureFailures = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "cluster_sign_failures_total",
			Help:      "Total number of inner cluster envelope signature failures",
		},
	)

	// RouteDispatchDuration tracks how long a single packet's route
	// handler took to run.
	RouteDispatchDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "dispatch_duration_seconds",
			Help:      "Route handler dispatch duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	// PacketSize tracks encoded packet sizes.
	PacketSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "size_bytes",
			Help:      "Encoded packet size in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		},
	)
)

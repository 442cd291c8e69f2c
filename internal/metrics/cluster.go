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
	// ClusterDispatches tracks outbound cluster operations by kind.
	ClusterDispatches = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "dispatched_total",
			Help:      "Total number of cluster dispatch operations sent",
		},
		[]string{"op"}, // p2p, grp, all, rmc
	)

	// ClusterPeersConnected counts peer links registered via AddPeer,
	// per fleet group. It does not track whether a link's Bridge Client
	// connection is currently open.
	ClusterPeersConnected = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "peers_connected",
			Help:      "Number of peer links registered per group",
		},
		[]string{"group"},
	)

	// ClusterRemoteCallDuration tracks callRemoteForResult round trips.
	ClusterRemoteCallDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "remote_call_duration_seconds",
			Help:      "Duration of RMC round trips to a peer node",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)
)

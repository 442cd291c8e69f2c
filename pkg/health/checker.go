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

import "time"

// ServerStats is the subset of *server.MessageServer's registry
// accessors the checker needs. Defined here rather than imported so
// this package stays free of a dependency on pkg/server.
type ServerStats interface {
	SessionCount() int
	BoundSessionCount() int
	ChannelCount() int
}

// ClusterStats is the subset of *server.ClusterDispatcher's accessors
// the checker needs.
type ClusterStats interface {
	PeerCount() int
}

// Checker performs health checks against a running Message Server.
type Checker struct {
	server  ServerStats
	cluster ClusterStats
}

// NewChecker creates a Checker bound to a Message Server and its
// cluster dispatcher.
func NewChecker(server ServerStats, cluster ClusterStats) *Checker {
	return &Checker{server: server, cluster: cluster}
}

// CheckAll performs every health check and aggregates them into one
// overall status.
func (c *Checker) CheckAll() *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now(),
		Status:    StatusHealthy,
		Errors:    make([]string, 0),
	}

	status.ServerStatus = c.checkServer()
	if status.ServerStatus.Status != StatusHealthy {
		status.Status = status.ServerStatus.Status
		if status.ServerStatus.Error != "" {
			status.Errors = append(status.Errors, "server: "+status.ServerStatus.Error)
		}
	}

	status.RuntimeStatus = CheckRuntime()
	if status.RuntimeStatus.Status != StatusHealthy {
		if status.Status == StatusHealthy {
			status.Status = status.RuntimeStatus.Status
		} else if status.RuntimeStatus.Status == StatusUnhealthy {
			status.Status = StatusUnhealthy
		}
		if status.RuntimeStatus.Error != "" {
			status.Errors = append(status.Errors, "runtime: "+status.RuntimeStatus.Error)
		}
	}

	return status
}

func (c *Checker) checkServer() *ServerHealth {
	peers := 0
	if c.cluster != nil {
		peers = c.cluster.PeerCount()
	}

	h := &ServerHealth{
		Status:        StatusHealthy,
		Sessions:      c.server.SessionCount(),
		BoundSessions: c.server.BoundSessionCount(),
		Channels:      c.server.ChannelCount(),
		ClusterPeers:  peers,
	}
	return h
}

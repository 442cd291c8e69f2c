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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeServerStats struct {
	sessions, bound, channels int
}

func (f fakeServerStats) SessionCount() int      { return f.sessions }
func (f fakeServerStats) BoundSessionCount() int { return f.bound }
func (f fakeServerStats) ChannelCount() int      { return f.channels }

type fakeClusterStats struct{ peers int }

func (f fakeClusterStats) PeerCount() int { return f.peers }

func TestCheckAllHealthy(t *testing.T) {
	checker := NewChecker(fakeServerStats{sessions: 3, bound: 2, channels: 1}, fakeClusterStats{peers: 2})

	status := checker.CheckAll()

	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, 3, status.ServerStatus.Sessions)
	assert.Equal(t, 2, status.ServerStatus.BoundSessions)
	assert.Equal(t, 1, status.ServerStatus.Channels)
	assert.Equal(t, 2, status.ServerStatus.ClusterPeers)
	assert.NotNil(t, status.RuntimeStatus)
	assert.NotZero(t, status.Timestamp)
}

func TestCheckAllWithoutClusterStats(t *testing.T) {
	checker := NewChecker(fakeServerStats{sessions: 1}, nil)

	status := checker.CheckAll()

	assert.Equal(t, 0, status.ServerStatus.ClusterPeers)
}

func TestCheckRuntimeReportsGoroutines(t *testing.T) {
	h := CheckRuntime()
	assert.Equal(t, StatusHealthy, h.Status)
	assert.Greater(t, h.Goroutines, 0)
}

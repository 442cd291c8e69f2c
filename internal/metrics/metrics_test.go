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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistered(t *testing.T) {
	require.NotNil(t, PacketsRouted)
	require.NotNil(t, DuplicateRequestIDs)
	require.NotNil(t, ClusterSignatureFailures)
	require.NotNil(t, SessionsActive)
	require.NotNil(t, SessionsBound)
	require.NotNil(t, ClusterDispatches)
	require.NotNil(t, CodecOperations)
}

func TestLatencyCollector(t *testing.T) {
	c := NewLatencyCollector(4)

	c.Record(10 * time.Millisecond)
	c.Record(20 * time.Millisecond)
	c.Record(30 * time.Millisecond)
	c.Record(40 * time.Millisecond)
	c.Record(50 * time.Millisecond) // evicts the 10ms sample

	snap := c.Snapshot()
	assert.EqualValues(t, 5, snap.Count)
	assert.Greater(t, snap.AvgUs, float64(0))
	assert.GreaterOrEqual(t, snap.P95Us, int64(40000))
}

func TestLatencyCollectorEmpty(t *testing.T) {
	c := NewLatencyCollector(10)
	snap := c.Snapshot()
	assert.EqualValues(t, 0, snap.Count)
	assert.Equal(t, float64(0), snap.AvgUs)
	assert.EqualValues(t, 0, snap.P95Us)
}

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

package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadParsesScalarFields(t *testing.T) {
	t.Setenv("APP_DIR", "/srv/wsfabric")
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_NAME", "node-a")
	t.Setenv("APP_HOST", "0.0.0.0")
	t.Setenv("APP_INIP", "10.0.0.5")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("APP_SSLS", `{"key":"/etc/wsfabric/key.pem","cert":"/etc/wsfabric/cert.pem"}`)
	t.Setenv("APP_LINKS", `["east","west"]`)
	t.Setenv("APP_NODES", "")

	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/wsfabric", p.Dir)
	assert.Equal(t, "production", p.Env)
	assert.Equal(t, "node-a", p.Name)
	assert.Equal(t, 8080, p.Port)
	require.NotNil(t, p.SSLs)
	assert.Equal(t, "/etc/wsfabric/key.pem", p.SSLs.Key)
	assert.Equal(t, "/etc/wsfabric/cert.pem", p.SSLs.Cert)
	assert.Equal(t, []string{"east", "west"}, p.Links)
}

func TestLoadDefaultsEnv(t *testing.T) {
	t.Setenv("APP_ENV", "")
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "development", p.Env)
}

func TestLoadAbsentSSLsIsNil(t *testing.T) {
	t.Setenv("APP_SSLS", "")
	p, err := Load("")
	require.NoError(t, err)
	assert.Nil(t, p.SSLs)
}

func TestParseNodesGroupedByName(t *testing.T) {
	t.Setenv("APP_NODES", `{
		"east": [
			{"host":"east-1","inip":"10.0.1.1","port":9000},
			{"host":"east-2","inip":"10.0.1.2","port":9000,"ssls":{"key":"k","cert":"c"}}
		],
		"west": [
			{"host":"west-1","inip":"10.0.2.1","port":9001}
		]
	}`)

	p, err := Load("")
	require.NoError(t, err)

	byGroup := p.NodesByGroup()
	require.Len(t, byGroup["east"], 2)
	require.Len(t, byGroup["west"], 1)

	assert.Equal(t, "ws://east-1:9000", byGroup["east"][0].URL())
	assert.Equal(t, "wss://east-2:9000", byGroup["east"][1].URL())
	assert.Equal(t, "10.0.2.1", byGroup["west"][0].InIP)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("APP_PORT", "not-a-port")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadRejectsMalformedNodes(t *testing.T) {
	t.Setenv("APP_NODES", "[[[")
	_, err := Load("")
	assert.Error(t, err)
}

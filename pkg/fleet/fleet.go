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

// Package fleet loads the per-process environment a FleetPlanner hands
// a node at startup: APP_DIR, APP_ENV, APP_NAME, APP_HOST, APP_INIP,
// APP_PORT, APP_SSLS, APP_LINKS, and APP_NODES. The values are treated
// as opaque — this package only parses and validates their shape, it
// does not interpret fleet topology.
package fleet

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TLSMaterial is the JSON shape of APP_SSLS: PEM key/cert paths for TLS
// termination, or omitted entirely when a node/peer speaks plain ws.
type TLSMaterial struct {
	Key  string `yaml:"key" json:"key"`
	Cert string `yaml:"cert" json:"cert"`
}

// Node describes one peer entry parsed out of APP_NODES's per-group
// array, per spec.md §6: a reachable host, its internal IP, the port
// its Message Server listens on, and optional TLS material.
type Node struct {
	Host string       `yaml:"host" json:"host"`
	InIP string       `yaml:"inip" json:"inip"`
	Port int          `yaml:"port" json:"port"`
	SSLs *TLSMaterial `yaml:"ssls" json:"ssls,omitempty"`
}

// URL derives the peer's fleet URL from its host/port/ssls, ws:// when
// SSLs is absent and wss:// when present.
func (n Node) URL() string {
	scheme := "ws"
	if n.SSLs != nil {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, n.Host, n.Port)
}

// Plan is the resolved configuration for one running node.
type Plan struct {
	Dir   string            `yaml:"dir" json:"dir"`
	Env   string            `yaml:"env" json:"env"`
	Name  string            `yaml:"name" json:"name"`
	Host  string            `yaml:"host" json:"host"`
	InIP  string            `yaml:"inip" json:"inip"`
	Port  int               `yaml:"port" json:"port"`
	SSLs  *TLSMaterial      `yaml:"ssls" json:"ssls"`
	Links []string          `yaml:"links" json:"links"`
	Nodes map[string][]Node `yaml:"nodes" json:"nodes"`
}

// Load reads .env (if present, via godotenv) and then the process
// environment into a Plan. envFile may be empty to skip .env loading
// entirely.
func Load(envFile string) (*Plan, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("fleet: loading %s: %w", envFile, err)
		}
	}

	p := &Plan{
		Dir:  os.Getenv("APP_DIR"),
		Env:  getenvDefault("APP_ENV", "development"),
		Name: os.Getenv("APP_NAME"),
		Host: os.Getenv("APP_HOST"),
		InIP: os.Getenv("APP_INIP"),
	}

	if raw := os.Getenv("APP_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("fleet: APP_PORT %q is not an integer: %w", raw, err)
		}
		p.Port = port
	}

	if raw := os.Getenv("APP_SSLS"); raw != "" {
		var ssls TLSMaterial
		if err := json.Unmarshal([]byte(raw), &ssls); err != nil {
			return nil, fmt.Errorf("fleet: APP_SSLS %q is not valid JSON {key,cert}: %w", raw, err)
		}
		p.SSLs = &ssls
	}

	if raw := os.Getenv("APP_LINKS"); raw != "" {
		var links []string
		if err := json.Unmarshal([]byte(raw), &links); err != nil {
			return nil, fmt.Errorf("fleet: APP_LINKS %q is not a valid JSON string list: %w", raw, err)
		}
		p.Links = links
	}

	if raw := os.Getenv("APP_NODES"); raw != "" {
		nodes, err := parseNodes(raw)
		if err != nil {
			return nil, fmt.Errorf("fleet: APP_NODES: %w", err)
		}
		p.Nodes = nodes
	}

	return p, nil
}

// parseNodes accepts APP_NODES's documented shape — JSON mapping a
// group name to an array of node objects — per spec.md §6. It decodes
// with the YAML parser, so the same shape written as YAML is accepted
// too; this package loads no YAML file from disk.
func parseNodes(raw string) (map[string][]Node, error) {
	nodes := make(map[string][]Node)
	if err := yaml.Unmarshal([]byte(raw), &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NodesByGroup returns the fixed peer set, bucketed by cluster group
// name, that the cluster dispatcher connects to at startup.
func (p *Plan) NodesByGroup() map[string][]Node {
	return p.Nodes
}

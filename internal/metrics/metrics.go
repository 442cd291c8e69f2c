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

// Package metrics exposes the Prometheus instrumentation for the
// messaging fabric: codec failures, session churn, message routing, and
// cluster dispatch, all registered against a private registry so
// importing this package never collides with a host application's own
// default registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "wsfabric"

// Registry is the private Prometheus registry all wsfabric metrics are
// registered against.
var Registry = prometheus.NewRegistry()

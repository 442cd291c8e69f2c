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

// Package codec implements the wire Packet format and its encrypted
// framing shared by every WebSocket edge in wsfabric: the Bridge Client
// talking to a Message Server, and a Message Server talking to a peer
// node's Message Server.
package codec

import "strings"

// Packet is the sole unit crossing every WebSocket edge.
//
// Route addresses the packet to a handler. Reserved routes begin and
// end with "$" (Heartbeat, Response, and the four inner cluster
// routes); anything else is an application-defined route. ReqID
// correlates a request with its eventual $response$ packet and is
// assigned by whichever side originates the exchange.
type Packet struct {
	Route   string      `json:"route"`
	ReqID   uint64      `json:"reqId"`
	Message interface{} `json:"message"`
}

// Reserved routes (spec.md §6).
const (
	RouteHeartbeat = "$heartick$"
	RouteResponse  = "$response$"
	RouteInnerP2P  = "$innerP2P$"
	RouteInnerGRP  = "$innerGRP$"
	RouteInnerALL  = "$innerALL$"
	RouteInnerRMC  = "$innerRMC$"
)

// IsReserved reports whether route follows the reserved "$...$" naming
// convention. User routes must not collide with this shape.
func IsReserved(route string) bool {
	return len(route) >= 2 && strings.HasPrefix(route, "$") && strings.HasSuffix(route, "$")
}

// ResponseEnvelope is the message payload of a $response$ packet.
type ResponseEnvelope struct {
	Code int         `json:"code"`
	Data interface{} `json:"data"`
}

// Common response codes.
const (
	CodeOK             = 200
	CodeGatewayTimeout = 504
)

// NewResponse builds a success envelope.
func NewResponse(data interface{}) ResponseEnvelope {
	return ResponseEnvelope{Code: CodeOK, Data: data}
}

// NewErrorResponse builds a failure envelope with an application or
// framework-assigned status code.
func NewErrorResponse(code int, data interface{}) ResponseEnvelope {
	return ResponseEnvelope{Code: code, Data: data}
}

// Validate checks the packet-shape invariant from spec.md §3: route
// must be non-empty, and message must be present (non-nil). Every
// ReqID value, including 0, is accepted, so it is not checked here.
func Validate(p *Packet) error {
	if p == nil {
		return ErrInvalidPacket
	}
	if p.Route == "" {
		return ErrInvalidPacket
	}
	if p.Message == nil {
		return ErrInvalidPacket
	}
	return nil
}

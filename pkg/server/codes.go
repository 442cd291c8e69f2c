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

package server

// Close codes owned by the Message Server side, per spec.md §6.
const (
	CloseParseError  = 4001 // frame could not be decoded
	CloseFormatError = 4002 // decoded packet failed shape validation
	CloseRepeatReqID = 4003 // reqId already present in the session's recent ring
	CloseSignError   = 4004 // cluster envelope signature mismatch
	CloseRemoteError = 4005 // $innerRMC$ addressed an unknown route
	CloseRouteError  = 4006 // user packet addressed an unknown route
	CloseSocketError = 4007 // transport-level error while reading a frame
	CloseTimeout     = 4008 // heartbeat lapse past the session timeout
	CloseNewBind     = 4009 // session was displaced by a newer bind for the same uid
)

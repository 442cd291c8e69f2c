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

package bridge

import "errors"

var (
	errClientExpired    = errors.New("bridge: client disconnected, instance is dead")
	errDeserializeError = errors.New("bridge: deserialize error")
)

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of LaunchETL.
//
// LaunchETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// LaunchETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with LaunchETL. If not, see https://www.gnu.org/licenses/.

package transform

import "github.com/aaronlmathis/launchetl/core"

// UnknownRocket is the name used for rocket ids missing from the lookup.
const UnknownRocket = "Unknown"

// RocketLookup maps rocket ids to rocket names.
// It is built once per run and only read afterwards.
type RocketLookup struct {
	names map[string]string
}

// NewRocketLookup builds the lookup from raw rocket records.
// Rockets without a string id are skipped; rockets without a string name map
// to UnknownRocket. For duplicate ids the last rocket wins.
func NewRocketLookup(rockets []core.Record) RocketLookup {
	names := make(map[string]string, len(rockets))
	for _, rocket := range rockets {
		id, ok := rocket[core.FieldID].(string)
		if !ok {
			continue
		}
		name, ok := rocket[core.FieldName].(string)
		if !ok {
			name = UnknownRocket
		}
		names[id] = name
	}
	return RocketLookup{names: names}
}

// Name returns the rocket name for id, or UnknownRocket.
func (l RocketLookup) Name(id interface{}) string {
	key, ok := id.(string)
	if !ok {
		return UnknownRocket
	}
	if name, ok := l.names[key]; ok {
		return name
	}
	return UnknownRocket
}

// Len returns the number of rockets in the lookup.
func (l RocketLookup) Len() int {
	return len(l.names)
}

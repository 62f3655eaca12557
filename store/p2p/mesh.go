// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package p2p defines the mesh of devices pages sync over without a cloud.
package p2p

import (
	"github.com/pkg/errors"
)

// ErrUnknownDevice is returned when sending to a device not in the mesh.
var ErrUnknownDevice = errors.New("unknown device")

// DeviceID names a device of the mesh.
type DeviceID string

type DeviceChange int

const (
	DeviceNew DeviceChange = iota
	DeviceDeleted
)

func (c DeviceChange) String() string {
	switch c {
	case DeviceNew:
		return "new"
	case DeviceDeleted:
		return "deleted"
	}
	return "unknown"
}

// MessageHandler receives the messages other devices send.
type MessageHandler func(from DeviceID, data []byte)

// DeviceChangeHandler is told when devices join or leave the mesh.
type DeviceChangeHandler func(device DeviceID, change DeviceChange)

// DeviceMesh connects a device to its peers. Messages between two devices
// are delivered in order. Handlers are called from a single goroutine.
type DeviceMesh interface {
	// GetDeviceList returns the devices currently reachable.
	GetDeviceList() []DeviceID

	Send(device DeviceID, data []byte) error

	SetOnMessage(h MessageHandler)

	SetOnDeviceChange(h DeviceChangeHandler)
}

// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import "log/slog"

// names maps each capability bit to its dotted manifest name. The
// mapping is total over the defined vocabulary and bidirectional via
// FromString and Capability.String.
var names = []struct {
	name string
	cap  Capability
}{
	{"display.read", DisplayRead},
	{"display.write", DisplayWrite},
	{"input.read", InputRead},
	{"input.callback", InputCallback},
	{"rf.init", RFInit},
	{"rf.transceive", RFTransceive},
	{"rf.config", RFConfig},
	{"sensor.imu", SensorIMU},
	{"sensor.env", SensorEnv},
	{"sensor.power", SensorPower},
	{"sensor.light", SensorLight},
	{"storage.read", StorageRead},
	{"storage.write", StorageWrite},
	{"network.http", NetworkHTTP},
	{"network.mqtt", NetworkMQTT},
	{"network.raw", NetworkRaw},
	{"system.info", SystemInfo},
	{"system.reboot", SystemReboot},
	{"system.settings", SystemSettings},
	{"bt.advertise", BTAdvertise},
	{"bt.connect", BTConnect},
	{"bt.hid", BTHID},
	{"ipc.send", IPCSend},
	{"ipc.receive", IPCReceive},
	{"ipc.shm", IPCShm},
}

// FromString maps a dotted capability name to its bit. Unknown names
// map to None with a warning log; callers (manifest parsing) must
// treat a None result as "not granted", never as a parse error.
func FromString(name string) Capability {
	for _, entry := range names {
		if entry.name == name {
			return entry.cap
		}
	}
	slog.Warn("unknown capability name", "capability", name)
	return None
}

// FromStrings folds a manifest capability list into one bitmask.
// Unknown entries contribute nothing.
func FromStrings(capNames []string) Capability {
	var mask Capability
	for _, name := range capNames {
		mask |= FromString(name)
	}
	return mask
}

// String returns the dotted name of a single capability bit, or
// "unknown" when cap is not exactly one defined bit.
func (c Capability) String() string {
	for _, entry := range names {
		if entry.cap == c {
			return entry.name
		}
	}
	return "unknown"
}

// Names expands a bitmask into the dotted names of its set bits, in
// vocabulary order. Used for audit logging and snapshots.
func (c Capability) Names() []string {
	var set []string
	for _, entry := range names {
		if c&entry.cap != 0 {
			set = append(set, entry.name)
		}
	}
	return set
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package license implements machine-bound license activation, offline key
// verification, feature gating, and the trial conversion quota.
package license

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strings"
)

// machineIDPaths are probed in order for a platform machine identifier.
var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// MachineFingerprint derives a stable opaque identifier for this machine
// from the primary network adapter's hardware address, the hostname, and a
// platform machine id when available. The identifier is a SHA-256 hex digest
// and is used only as a license binding key.
func MachineFingerprint() (string, error) {
	var parts []string

	if mac := primaryMAC(); mac != "" {
		parts = append(parts, mac)
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		parts = append(parts, host)
	}
	if id := machineID(); id != "" {
		parts = append(parts, id)
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no machine identifiers available")
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:]), nil
}

// primaryMAC returns the hardware address of the first non-loopback
// interface that has one, or "".
func primaryMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if addr := iface.HardwareAddr.String(); addr != "" {
			return addr
		}
	}
	return ""
}

func machineID() string {
	for _, path := range machineIDPaths {
		data, err := os.ReadFile(path)
		if err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id
			}
		}
	}
	return ""
}

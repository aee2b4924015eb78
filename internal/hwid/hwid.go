// Package hwid resolves the device-stable hardware id used to template
// installation paths and bind signed installation reports (spec
// GLOSSARY: "Hardware id").
package hwid

import (
	"net"
	"os"
)

const envVar = "AM_HARDWARE_ID"

// Resolve returns the configured hardware id: the AM_HARDWARE_ID
// environment variable if set, otherwise the hardware address of the
// first non-loopback network interface, otherwise "unknown".
func Resolve() string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "unknown"
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String()
	}

	return "unknown"
}

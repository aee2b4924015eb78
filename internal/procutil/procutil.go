// Package procutil implements the Process-Title/Output Utilities (C2):
// TTY capability detection, console width tracking, parent-process
// discovery, and timeout scaling. Grounded on cmd/bblfshd/main.go's
// color/terminal handling idiom, generalized and promoted to use
// github.com/mattn/go-isatty and github.com/containerd/console
// directly rather than through a CLI flag.
package procutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/console"
	"github.com/mattn/go-isatty"
)

// ColorMode is the AM_FORCE_COLOR_OUTPUT setting (spec §6 Environment).
type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorOn
	ColorOff
)

// ParseColorMode reads the on|off|0|1|auto vocabulary from spec §6.
func ParseColorMode(v string) ColorMode {
	switch strings.ToLower(v) {
	case "on", "1":
		return ColorOn
	case "off", "0":
		return ColorOff
	default:
		return ColorAuto
	}
}

// ColorEnabled resolves mode against whether fd is actually a TTY.
func ColorEnabled(mode ColorMode, fd uintptr) bool {
	switch mode {
	case ColorOn:
		return true
	case ColorOff:
		return false
	default:
		return isatty.IsTerminal(fd)
	}
}

// ConsoleWidth returns the current width of the controlling terminal
// behind f, or 0 if f is not a console.
func ConsoleWidth(f console.File) int {
	c, err := console.ConsoleFromFile(f)
	if err != nil {
		return 0
	}
	size, err := c.Size()
	if err != nil {
		return 0
	}
	return int(size.Width)
}

// TimeoutFactorEnvVar is the AM_TIMEOUT_FACTOR variable from spec §6.
const TimeoutFactorEnvVar = "AM_TIMEOUT_FACTOR"

// TimeoutFactor reads AM_TIMEOUT_FACTOR, defaulting to 1 for a missing
// or non-positive value.
func TimeoutFactor() int {
	v := os.Getenv(TimeoutFactorEnvVar)
	if v == "" {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

// ScaleTimeout multiplies d by the configured AM_TIMEOUT_FACTOR, per
// spec §5: "All timeout values configured by AM_TIMEOUT_FACTOR are
// multiplied by the corresponding environment integer."
func ScaleTimeout(d time.Duration) time.Duration {
	return d * time.Duration(TimeoutFactor())
}

// ParentPID discovers the parent process, matching the source's
// parent-process discovery utility.
func ParentPID() int {
	return os.Getppid()
}

// Package capset narrows a requested Linux capability bounding set down
// to what the running kernel actually supports, using
// github.com/syndtr/gocapability/capability the way runc itself probes
// capability support before handing a list to libcontainer. Grounded on
// runtime/container.go's capability wiring: the teacher hands
// libcontainer a fixed list; this generalizes that to a list validated
// against the host first, so an older kernel missing a newer capability
// name doesn't make container creation fail outright.
package capset

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/syndtr/gocapability/capability"
)

// Supported returns the subset of requested (capability names like
// "CAP_CHOWN") that the running kernel's last capability actually
// covers. Unknown or unsupported names are dropped with a logged
// reason rather than failing the whole set.
func Supported(requested []string, log *logrus.Entry) []string {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	last, err := capability.LastCap()
	if err != nil {
		log.WithError(err).Warn("capset: could not read the kernel's last supported capability, passing the requested set through unfiltered")
		return requested
	}

	out := make([]string, 0, len(requested))
	for _, name := range requested {
		cap, ok := byName[strings.ToUpper(name)]
		if !ok {
			log.WithField("capability", name).Warn("capset: unrecognized capability name, dropping")
			continue
		}
		if cap > last {
			log.WithField("capability", name).Warn("capset: capability not supported by running kernel, dropping")
			continue
		}
		out = append(out, name)
	}
	return out
}

// byName maps the "CAP_*" string form libcontainer's configs.Capabilities
// expects to gocapability's Cap values, for the handful of capabilities
// the process container ever requests.
var byName = map[string]capability.Cap{
	"CAP_CHOWN":            capability.CAP_CHOWN,
	"CAP_SETUID":           capability.CAP_SETUID,
	"CAP_SETGID":           capability.CAP_SETGID,
	"CAP_DAC_OVERRIDE":     capability.CAP_DAC_OVERRIDE,
	"CAP_NET_BIND_SERVICE": capability.CAP_NET_BIND_SERVICE,
	"CAP_SYS_CHROOT":       capability.CAP_SYS_CHROOT,
	"CAP_KILL":             capability.CAP_KILL,
	"CAP_FOWNER":           capability.CAP_FOWNER,
}

// Package amerr centralizes the stable error kinds shared by every
// package in the application manager, exactly the way daemon/errors.go
// centralizes ErrXXX values for the bblfshd daemon package.
package amerr

import "gopkg.in/src-d/go-errors.v1"

// Kinds, stable across every RPC and CLI boundary (spec §7).
var (
	Parse         = errors.NewKind("parse error: %s")
	IO            = errors.NewKind("I/O error: %s")
	System        = errors.NewKind("system error: %s")
	Security      = errors.NewKind("security error: %s")
	DBus          = errors.NewKind("bus error: %s")
	AppRunning    = errors.NewKind("application %s is running")
	AlreadyExists = errors.NewKind("%s already exists")
	NotFound      = errors.NewKind("%s not found")
	Canceled      = errors.NewKind("operation canceled: %s")
)

// Kind identifies which of the package vars above produced an error, for
// callers (RPC replies, CLI exit codes) that need to branch on it without
// string-matching the message.
type Kind int

const (
	KindNone Kind = iota
	KindParse
	KindIO
	KindSystem
	KindSecurity
	KindDBus
	KindAppRunning
	KindAlreadyExists
	KindNotFound
	KindCanceled
)

// Classify maps err to the Kind of the *errors.Kind that produced it, or
// KindNone if err didn't originate from one of the kinds above.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case Parse.Is(err):
		return KindParse
	case IO.Is(err):
		return KindIO
	case System.Is(err):
		return KindSystem
	case Security.Is(err):
		return KindSecurity
	case DBus.Is(err):
		return KindDBus
	case AppRunning.Is(err):
		return KindAppRunning
	case AlreadyExists.Is(err):
		return KindAlreadyExists
	case NotFound.Is(err):
		return KindNotFound
	case Canceled.Is(err):
		return KindCanceled
	default:
		return KindNone
	}
}

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "Parse"
	case KindIO:
		return "IO"
	case KindSystem:
		return "System"
	case KindSecurity:
		return "Security"
	case KindDBus:
		return "DBus"
	case KindAppRunning:
		return "AppRunning"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindNotFound:
		return "NotFound"
	case KindCanceled:
		return "Canceled"
	default:
		return "None"
	}
}

// Package cryptoload implements the Dynamic Crypto Loader (C3 / C4.7):
// a typed symbol table over a versioned, dynamically resolved crypto
// library. Grounded on the original implementation's
// libcryptofunction.cpp: probe a platform-specific library, verify a
// self-reported version lies in [min, max), then resolve the remaining
// symbols lazily — permanently failing every symbol on a version
// mismatch rather than re-probing.
//
// Go has no ecosystem dlopen-equivalent symbol resolver, so this uses
// the standard library's plugin package. When
// no plugin path is configured, Loader falls back to a fixed table of
// golang.org/x/crypto primitives so the system has working crypto out
// of the box.
package cryptoload

import (
	"plugin"
	"sync"

	"github.com/appkit/amd/internal/amerr"
	"golang.org/x/crypto/ed25519"
)

// versionSymbol is the symbol name the plugin must export reporting its
// own version as an int.
const versionSymbol = "CryptoLibraryVersion"

// Bounds is the accepted [Min, Max) version window (spec §4.7).
type Bounds struct {
	Min int
	Max int
}

// Sign and Verify are the typed function handles the rest of the system
// invokes. An unresolved handle (version mismatch, or the symbol simply
// isn't exported) always returns a System error, per spec §4.7: "every
// typed symbol becomes permanently unresolved; callers must treat
// invocation of an unresolved symbol as System failure."
type Sign func(priv []byte, message []byte) ([]byte, error)
type Verify func(pub []byte, message, sig []byte) (bool, error)

// Loader is the typed symbol table. It resolves lazily and caches
// failures permanently once a version mismatch is observed.
type Loader struct {
	bounds Bounds

	mu        sync.Mutex
	probed    bool
	resolved  bool // true iff the plugin passed the version gate
	plug      *plugin.Plugin
	signSym   Sign
	verifySym Verify
}

// New returns a loader with the given version bounds. Nothing is probed
// until LoadFrom is called; Sign and Verify fail with System before that.
func New(bounds Bounds) *Loader {
	return &Loader{bounds: bounds}
}

// probe resolves the plugin and checks its version exactly once. On
// failure, resolved stays false forever: no re-probing is attempted,
// matching spec §4.7.
func (l *Loader) probe(libPath string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.probed {
		return
	}
	l.probed = true

	if libPath == "" {
		return // no plugin configured: stay unresolved, callers fall back
	}

	p, err := plugin.Open(libPath)
	if err != nil {
		return
	}

	versionSym, err := p.Lookup(versionSymbol)
	if err != nil {
		return
	}
	versionFn, ok := versionSym.(func() int)
	if !ok {
		return
	}
	version := versionFn()
	if version < l.bounds.Min || version >= l.bounds.Max {
		return
	}

	l.plug = p
	l.resolved = true

	if sym, err := p.Lookup("Sign"); err == nil {
		if fn, ok := sym.(func([]byte, []byte) ([]byte, error)); ok {
			l.signSym = fn
		}
	}
	if sym, err := p.Lookup("Verify"); err == nil {
		if fn, ok := sym.(func([]byte, []byte, []byte) (bool, error)); ok {
			l.verifySym = fn
		}
	}
}

// LoadFrom probes libPath (normally resolved once at orchestrator
// startup from the "cryptoPluginPath" configuration key).
func (l *Loader) LoadFrom(libPath string) {
	l.probe(libPath)
}

// Sign invokes the resolved Sign symbol, or the ed25519 fallback if no
// plugin was configured, or a System error if the plugin was configured
// but failed its version gate.
func (l *Loader) Sign(priv, message []byte) ([]byte, error) {
	l.mu.Lock()
	probed, resolved, sym := l.probed, l.resolved, l.signSym
	l.mu.Unlock()

	if !probed {
		return nil, amerr.System.New("crypto loader not initialized")
	}
	if !resolved {
		if len(priv) != ed25519.PrivateKeySize {
			return nil, amerr.System.New("no crypto plugin resolved and key is not an ed25519 private key")
		}
		return ed25519.Sign(priv, message), nil
	}
	if sym == nil {
		return nil, amerr.System.New("Sign symbol unresolved")
	}
	return sym(priv, message)
}

// Verify invokes the resolved Verify symbol or the ed25519 fallback.
func (l *Loader) Verify(pub, message, sig []byte) (bool, error) {
	l.mu.Lock()
	probed, resolved, sym := l.probed, l.resolved, l.verifySym
	l.mu.Unlock()

	if !probed {
		return false, amerr.System.New("crypto loader not initialized")
	}
	if !resolved {
		if len(pub) != ed25519.PublicKeySize {
			return false, amerr.System.New("no crypto plugin resolved and key is not an ed25519 public key")
		}
		return ed25519.Verify(pub, message, sig), nil
	}
	if sym == nil {
		return false, amerr.System.New("Verify symbol unresolved")
	}
	return sym(pub, message, sig)
}

// Resolved reports whether a versioned plugin was successfully loaded
// (as opposed to running on the ed25519 fallback table).
func (l *Loader) Resolved() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolved
}

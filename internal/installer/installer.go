// Package installer implements the Installer Task Engine (C10):
// asynchronous, acknowledge-gated install/remove tasks with atomic
// staging, CA-chain verification, and broken-installation cleanup.
// Grounded on runtime/storage.go's install/remove/atomic-rootfs-swap
// discipline and runtime/unpack.go's extraction routine.
package installer

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/appkit/amd/internal/amerr"
	"github.com/appkit/amd/internal/app"
	"github.com/appkit/amd/internal/registry"
	"github.com/oklog/ulid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// UIDSeparation configures the "applicationUserIdSeparation" feature
// (spec §4.6, §9). Per the corrected semantics (spec §9's resolved Open
// Question), the feature is enabled iff this struct's pointer is
// non-nil and every field is populated — NOT the source's buggy
// never-true `found` flag.
type UIDSeparation struct {
	MinUserID     int
	MaxUserID     int
	CommonGroupID int
}

// Enabled reports whether u describes a complete configuration. A nil
// receiver or a zero MaxUserID (an obviously absent config) disables
// the feature.
func (u *UIDSeparation) Enabled() bool {
	return u != nil && u.MinUserID > 0 && u.MaxUserID > u.MinUserID && u.CommonGroupID > 0
}

// CAVerifier checks a package's signer chain against a configured CA
// list. Swappable for tests; production wiring uses
// golang.org/x/crypto-backed chain verification patterned on the
// original's libcryptofunction.cpp (see internal/cryptoload).
type CAVerifier func(signerChain []string, digest string) error

// LocationResolver resolves a locationID to its installationPath and
// documentPath, per internal/location.Location.
type LocationResolver func(locationID string) (installPath, docPath string, ok bool)

// Engine runs install and remove tasks against the locations resolve
// returns. It does not write the registry database.
type Engine struct {
	log      *logrus.Entry
	resolve  LocationResolver
	verify   CAVerifier
	allowUnsigned bool
	uidSep   *UIDSeparation

	mu    sync.Mutex
	tasks map[string]*Task

	// locationLocks enforces "at most one Applying task per locationId"
	// (spec §4.6 Concurrency).
	locationLocks map[string]*sync.Mutex

	nextUID int
}

// New builds an installer engine. allowUnsigned lets packages skip
// signature verification (spec §4.6 step 2: "skipped when
// allowInstallationOfUnsignedPackages").
func New(resolve LocationResolver, verify CAVerifier, allowUnsigned bool, uidSep *UIDSeparation, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	min := 0
	if uidSep.Enabled() {
		min = uidSep.MinUserID
	}
	return &Engine{
		log:           log.WithField("component", "installer"),
		resolve:       resolve,
		verify:        verify,
		allowUnsigned: allowUnsigned,
		uidSep:        uidSep,
		tasks:         map[string]*Task{},
		locationLocks: map[string]*sync.Mutex{},
		nextUID:       min,
	}
}

func newTaskID() string { return ulid.MustNew(ulid.Now(), rand.Reader).String() }

func (e *Engine) locationLock(locationID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locationLocks[locationID]
	if !ok {
		l = &sync.Mutex{}
		e.locationLocks[locationID] = l
	}
	return l
}

// Task returns a snapshot of a task's current state.
func (e *Engine) Task(taskID string) (*Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[taskID]
	return t, ok
}

func (e *Engine) setTask(t *Task) {
	e.mu.Lock()
	e.tasks[t.ID] = t
	e.mu.Unlock()
}

// StartInstallation begins an install task reading a package from src
// (spec §4.6 step 1-2). It returns immediately with a task id; the
// manifest parse, digest computation, and signature verification run
// synchronously here (they're the "Receiving" phase) and the task ends
// up in AwaitingAck, from which the caller must call Acknowledge or
// Cancel.
func (e *Engine) StartInstallation(locationID string, src io.Reader) (string, error) {
	installPath, _, ok := e.resolve(locationID)
	if !ok {
		return "", amerr.NotFound.New("installation location " + locationID)
	}

	t := &Task{ID: newTaskID(), Kind: Install, LocationID: locationID, State: Receiving}
	e.setTask(t)

	stagingDir, err := ioutil.TempDir(installPath, ".staging-")
	if err != nil {
		return t.ID, e.fail(t, "System", err.Error())
	}
	t.stagingDir = stagingDir

	digest := sha256.New()
	tee := io.TeeReader(src, digest)

	if err := unpack(stagingDir, tee); err != nil {
		return t.ID, e.fail(t, "Parse", err.Error())
	}

	manifestPath := filepath.Join(stagingDir, "info.yaml")
	// info.yaml is a two-document stream (formatType/formatVersion
	// header, then the body carrying id/signerChain/...); reuse the
	// registry's own decoder rather than a single-document
	// yaml.Unmarshal, which would silently read only the header and
	// leave id/signerChain empty.
	body, err := registry.LoadManifest(manifestPath)
	if err != nil {
		return t.ID, e.fail(t, "Parse", "package does not contain a valid info.yaml")
	}

	if body.ID == "" {
		return t.ID, e.fail(t, "Parse", "embedded manifest has no id")
	}
	t.AppID = body.ID

	digestHex := hex.EncodeToString(digest.Sum(nil))
	t.DigestHex = digestHex

	if !e.allowUnsigned {
		if e.verify != nil {
			if err := e.verify(body.SignerChain, digestHex); err != nil {
				return t.ID, e.fail(t, "Security", err.Error())
			}
		}
	}

	size, err := dirSize(stagingDir)
	if err != nil {
		return t.ID, e.fail(t, "System", err.Error())
	}
	t.DiskSpaceUsed = size

	t.State = AwaitingAck
	e.setTask(t)
	return t.ID, nil
}

// Acknowledge moves an AwaitingAck task to Applying and performs the
// extraction-already-done staging's atomic rename into place, writing
// installation-report.yaml last (spec §4.6 step 4).
func (e *Engine) Acknowledge(taskID string) error {
	t, ok := e.Task(taskID)
	if !ok {
		return amerr.NotFound.New("task " + taskID)
	}
	if t.State != AwaitingAck {
		return amerr.System.New("task " + taskID + " is not awaiting acknowledge")
	}

	lock := e.locationLock(t.LocationID)
	lock.Lock()
	defer lock.Unlock()

	t.State = Applying
	e.setTask(t)

	installPath, _, _ := e.resolve(t.LocationID)
	finalDir := filepath.Join(installPath, t.AppID)

	if err := os.RemoveAll(finalDir); err != nil {
		return e.fail(t, "System", err.Error())
	}
	if err := os.Rename(t.stagingDir, finalDir); err != nil {
		return e.fail(t, "System", err.Error())
	}

	report := app.InstallationReport{
		ApplicationID:          t.AppID,
		InstallationLocationID: t.LocationID,
		DiskSpaceUsed:          t.DiskSpaceUsed,
		Digest:                 t.DigestHex,
	}

	if e.uidSep.Enabled() {
		report.UIDMapping = e.assignUIDs(t.AppID)
	}

	reportBytes, err := yaml.Marshal(report)
	if err != nil {
		return e.fail(t, "System", err.Error())
	}
	if err := ioutil.WriteFile(filepath.Join(finalDir, "installation-report.yaml"), reportBytes, 0644); err != nil {
		return e.fail(t, "System", err.Error())
	}

	t.State = Finished
	t.Progress = 100
	e.setTask(t)
	return nil
}

// assignUIDs allocates the next uid in [minUserId,maxUserId] for appID
// and pairs it with commonGroupId, per spec §4.6's user-id separation
// and the corrected semantics recorded in spec §9.
func (e *Engine) assignUIDs(appID string) map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.nextUID > e.uidSep.MaxUserID {
		e.nextUID = e.uidSep.MinUserID
	}
	uid := e.nextUID
	e.nextUID++
	return map[string]int{"uid": uid, "gid": e.uidSep.CommonGroupID}
}

// Cancel aborts a task that has not yet reached Finished, removing any
// staged artifacts (spec §4.6 step 3, invariant I4).
func (e *Engine) Cancel(taskID string) error {
	t, ok := e.Task(taskID)
	if !ok {
		return amerr.NotFound.New("task " + taskID)
	}
	if t.State == Finished || t.State == Failed {
		return amerr.System.New("task " + taskID + " already terminal")
	}
	_ = e.fail(t, "Canceled", "canceled by client")
	return nil
}

func (e *Engine) fail(t *Task, code, message string) error {
	if t.stagingDir != "" {
		_ = os.RemoveAll(t.stagingDir)
	}
	t.State = Failed
	t.FailCode = code
	t.FailMessage = message
	e.setTask(t)
	return amerr.System.New(fmt.Sprintf("%s: %s", code, message))
}

// dirSize sums the apparent size of every regular file under root, for
// the installation report's diskSpaceUsed (spec §3).
func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Remove deletes an installed application from locationID (spec §4.6
// step 5). force=false refuses removal of a running application;
// keepDocuments preserves the document directory.
func (e *Engine) Remove(appID, locationID string, force, keepDocuments bool, isRunning func(string) bool) (string, error) {
	if !force && isRunning != nil && isRunning(appID) {
		return "", amerr.AppRunning.New(appID)
	}

	installPath, docPath, ok := e.resolve(locationID)
	if !ok {
		return "", amerr.NotFound.New("installation location " + locationID)
	}

	t := &Task{ID: newTaskID(), Kind: Remove, LocationID: locationID, AppID: appID, State: Applying}
	e.setTask(t)

	lock := e.locationLock(locationID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(filepath.Join(installPath, appID)); err != nil {
		return t.ID, e.fail(t, "System", err.Error())
	}
	if !keepDocuments {
		if err := os.RemoveAll(filepath.Join(docPath, appID)); err != nil {
			return t.ID, e.fail(t, "System", err.Error())
		}
	}

	t.State = Finished
	t.Progress = 100
	e.setTask(t)
	return t.ID, nil
}

// CleanupBrokenInstallations runs at startup (spec §4.6 Crash-safety):
// any directory lacking a valid installation-report.yaml is removed;
// any staging directory is removed.
func CleanupBrokenInstallations(installPath string) error {
	entries, err := ioutil.ReadDir(installPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return amerr.System.Wrap(err, "scanning "+installPath)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(installPath, name)

		if len(name) >= len(".staging-") && name[:len(".staging-")] == ".staging-" {
			if err := os.RemoveAll(path); err != nil {
				return amerr.System.Wrap(err, "removing stale staging dir "+path)
			}
			continue
		}

		reportPath := filepath.Join(path, "installation-report.yaml")
		if _, err := os.Stat(reportPath); err != nil {
			if err := os.RemoveAll(path); err != nil {
				return amerr.System.Wrap(err, "removing broken installation "+path)
			}
		}
	}
	return nil
}

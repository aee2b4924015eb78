package crashhandler

import (
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBannerFormat(t *testing.T) {
	got := banner("com.x.a", 4242, syscall.SIGSEGV)
	require.Contains(t, got, "*** process com.x.a (4242) crashed ***")
	require.Contains(t, got, "> why: segmentation fault")
}

func TestNewDoesNotInstallUntilCalled(t *testing.T) {
	h := New("com.x.a", Config{PrintBacktrace: true, WaitForGdbAttach: 0, DumpCore: false})
	require.False(t, h.installed)
}

func TestWaitForGdbAttachReturnsAfterAlarm(t *testing.T) {
	h := New("com.x.a", Config{WaitForGdbAttach: 10 * time.Millisecond})
	h.alarmCh = make(chan os.Signal, 1)
	signal.Notify(h.alarmCh, syscall.SIGALRM)
	defer signal.Stop(h.alarmCh)

	start := time.Now()
	h.waitForGdbAttach()
	require.WithinDuration(t, start.Add(10*time.Millisecond), time.Now(), 500*time.Millisecond)
}

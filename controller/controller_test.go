package controller

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/p2psh/event"
	"github.com/opd-ai/p2psh/overlay"
)

func pollUntil(t *testing.T, id uuid.UUID, kind event.Kind, timeout time.Duration) event.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		e, ok := PollEvent(id)
		if ok && e.Kind == kind {
			return e
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for event kind %v", kind)
	return event.Event{}
}

func TestSendWaitAndReceiveTargetThroughController(t *testing.T) {
	net := overlay.NewFakeNetwork()

	srcDir := t.TempDir()
	srcFile := filepath.Join(srcDir, "hello.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("hello controller"), 0o644))

	sender := CreateController(net.Bind)
	defer Destroy(sender)

	require.NoError(t, StartSendWait(sender, srcFile))

	ticketEvent := pollUntil(t, sender, event.KindTicket, 5*time.Second)

	receiver := CreateController(net.Bind)
	defer Destroy(receiver)

	outDir := t.TempDir()
	require.NoError(t, StartReceiveTarget(receiver, ticketEvent.Value, outDir))

	pollUntil(t, receiver, event.KindCompleted, 5*time.Second)

	got, err := os.ReadFile(filepath.Join(outDir, "hello.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello controller", string(got))
}

func TestUnknownHandleReturnsError(t *testing.T) {
	require.ErrorIs(t, StartSendWait(uuid.New(), "/nonexistent"), ErrUnknownHandle)
}

func TestCancelStopsListeningSession(t *testing.T) {
	net := overlay.NewFakeNetwork()
	srcDir := t.TempDir()
	srcFile := filepath.Join(srcDir, "doc.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("data"), 0o644))

	id := CreateController(net.Bind)
	defer Destroy(id)

	require.NoError(t, StartSendWait(id, srcFile))
	pollUntil(t, id, event.KindTicket, 5*time.Second)

	require.NoError(t, Cancel(id))
}

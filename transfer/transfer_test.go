package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opd-ai/p2psh/event"
	"github.com/opd-ai/p2psh/overlay"
	"github.com/opd-ai/p2psh/ticket"
)

func writeTempFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func pollTicket(t *testing.T, q *event.Queue) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if e, ok := q.Poll(); ok && e.Kind == event.KindTicket {
			return e.Value
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for ticket event")
	return ""
}

func TestSendWaitReceiveTargetRoundTrip(t *testing.T) {
	net := overlay.NewFakeNetwork()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	senderEp, err := net.Bind(ctx, []string{overlay.ALPNNormal})
	require.NoError(t, err)
	defer senderEp.Close()

	receiverEp, err := net.Bind(ctx, []string{overlay.ALPNNormal})
	require.NoError(t, err)
	defer receiverEp.Close()

	srcDir := t.TempDir()
	content := []byte("the quick brown fox jumps over the lazy dog")
	srcFile := writeTempFile(t, srcDir, "fox.txt", content)

	senderQueue := event.NewQueue(0)
	sendErr := make(chan error, 1)
	go func() {
		sendErr <- SendWait(ctx, senderEp, srcFile, NewConfig(WithSink(senderQueue)))
	}()

	ticketStr := pollTicket(t, senderQueue)
	addr, err := ticket.Deserialize(ticketStr)
	require.NoError(t, err)

	outDir := t.TempDir()
	receiverQueue := event.NewQueue(0)
	recvErr := ReceiveTarget(ctx, receiverEp, outDir, addr, NewConfig(WithSink(receiverQueue)))
	require.NoError(t, recvErr)

	require.NoError(t, <-sendErr)

	got, err := os.ReadFile(filepath.Join(outDir, "fox.txt"))
	require.NoError(t, err)
	require.Equal(t, content, got)

	sawCompleted := false
	for {
		e, ok := receiverQueue.Poll()
		if !ok {
			break
		}
		if e.Kind == event.KindCompleted {
			sawCompleted = true
			require.Equal(t, "fox.txt", e.FileName)
			require.Equal(t, uint64(len(content)), e.SizeBytes)
		}
	}
	require.True(t, sawCompleted)
}

func TestSendToTargetReceiveListenRoundTrip(t *testing.T) {
	net := overlay.NewFakeNetwork()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	senderEp, err := net.Bind(ctx, []string{overlay.ALPNReverse})
	require.NoError(t, err)
	defer senderEp.Close()

	receiverEp, err := net.Bind(ctx, []string{overlay.ALPNReverse})
	require.NoError(t, err)
	defer receiverEp.Close()

	srcDir := t.TempDir()
	content := []byte("reverse mode payload")
	srcFile := writeTempFile(t, srcDir, "reverse.bin", content)

	outDir := t.TempDir()
	receiverQueue := event.NewQueue(0)
	recvErr := make(chan error, 1)
	go func() {
		recvErr <- ReceiveListen(ctx, receiverEp, outDir, NewConfig(WithSink(receiverQueue)))
	}()

	ticketStr := pollTicket(t, receiverQueue)
	addr, err := ticket.Deserialize(ticketStr)
	require.NoError(t, err)

	sendErr := SendToTarget(ctx, senderEp, srcFile, addr, NewConfig())
	require.NoError(t, sendErr)
	require.NoError(t, <-recvErr)

	got, err := os.ReadFile(filepath.Join(outDir, "reverse.bin"))
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestReceiveTargetRejectsWhenReceiverCannotPrepareDestination(t *testing.T) {
	net := overlay.NewFakeNetwork()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	senderEp, err := net.Bind(ctx, nil)
	require.NoError(t, err)
	defer senderEp.Close()

	receiverEp, err := net.Bind(ctx, nil)
	require.NoError(t, err)
	defer receiverEp.Close()

	srcDir := t.TempDir()
	srcFile := writeTempFile(t, srcDir, "doc.txt", []byte("data"))

	senderQueue := event.NewQueue(0)
	sendErr := make(chan error, 1)
	go func() {
		sendErr <- SendWait(ctx, senderEp, srcFile, NewConfig(WithSink(senderQueue)))
	}()

	ticketStr := pollTicket(t, senderQueue)
	addr, err := ticket.Deserialize(ticketStr)
	require.NoError(t, err)

	// A file, not a directory, as the output target forces PrepareDestination to fail.
	outDir := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(outDir, []byte("x"), 0o644))

	recvErr := ReceiveTarget(ctx, receiverEp, outDir, addr, NewConfig())
	require.Error(t, recvErr)
	require.Error(t, <-sendErr)
}

// Package controller implements the embedding lifecycle: a handle
// registry of in-flight transfer sessions, addressed by opaque UUIDs so a
// mobile or foreign-language binding never holds a raw Go pointer. The
// shape mirrors a C-API instance table (one handle per live object,
// guarded by a single mutex) without requiring cgo: a plain Go API is
// enough for gomobile-style bindings and for the CLI front-end alike.
package controller

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/p2psh/event"
	"github.com/opd-ai/p2psh/overlay"
	"github.com/opd-ai/p2psh/ticket"
	"github.com/opd-ai/p2psh/transfer"
)

// ErrUnknownHandle indicates the caller passed a handle that was never
// created, or was already destroyed.
var ErrUnknownHandle = errors.New("controller: unknown handle")

// ErrSessionRunning is returned by Cancel when no session has ever been
// started on the handle; this is not itself an error condition worth
// surfacing loudly, but callers may want to distinguish it from
// ErrUnknownHandle.
var ErrSessionRunning = errors.New("controller: no session currently running")

var (
	registryMu sync.RWMutex
	registry   = make(map[uuid.UUID]*Controller)
)

// Controller owns one Overlay binder and, at most, one active transfer
// driver task at a time. Starting a new session cancels whatever session
// was previously running on the same handle, matching the single-session
// model described for embeddings: a foreign front-end does not need to
// track its own concurrency, only the one handle it was given.
type Controller struct {
	bind overlay.BindFunc

	mu     sync.Mutex
	queue  *event.Queue
	cancel context.CancelFunc
	done   chan error
}

// CreateController registers a new Controller bound to bind (typically
// overlay.IceOverlay.Bind, or overlay.NewFakeNetwork().Bind in tests) and
// returns the handle used for every subsequent call.
func CreateController(bind overlay.BindFunc) uuid.UUID {
	id := uuid.New()
	c := &Controller{bind: bind, queue: event.NewQueue(event.DefaultQueueCapacity)}

	registryMu.Lock()
	registry[id] = c
	registryMu.Unlock()

	logrus.WithFields(logrus.Fields{"function": "CreateController", "handle": id}).Info("controller created")
	return id
}

func lookup(id uuid.UUID) (*Controller, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[id]
	return c, ok
}

// start cancels any session already running on c and launches fn as the
// new driver task, reporting its events through c's queue.
func (c *Controller) start(fn func(ctx context.Context, ep overlay.Endpoint, cfg transfer.Config) error) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	c.cancel = cancel
	c.done = done
	queue := c.queue
	bind := c.bind
	c.mu.Unlock()

	go func() {
		cfg := transfer.NewConfig(transfer.WithSink(queue))

		ep, err := bind(ctx, nil)
		if err != nil {
			queue.OnEvent(event.Error(event.ErrEndpointBindFailed, err))
			done <- err
			return
		}
		defer ep.Close()
		queue.OnEvent(event.Status("endpoint bound"))

		done <- fn(ctx, ep, cfg)
	}()
}

// StartSendWait begins listening for one peer to download filePath.
func StartSendWait(id uuid.UUID, filePath string) error {
	c, ok := lookup(id)
	if !ok {
		return ErrUnknownHandle
	}
	c.start(func(ctx context.Context, ep overlay.Endpoint, cfg transfer.Config) error {
		return transfer.SendWait(ctx, ep, filePath, cfg)
	})
	return nil
}

// StartSendToTicket begins dialing target (a ticket or bare host:port) to
// deliver filePath.
func StartSendToTicket(id uuid.UUID, filePath, target string) error {
	c, ok := lookup(id)
	if !ok {
		return ErrUnknownHandle
	}
	addr, err := ticket.ParseConnectTarget(target)
	if err != nil {
		return err
	}
	c.start(func(ctx context.Context, ep overlay.Endpoint, cfg transfer.Config) error {
		return transfer.SendToTarget(ctx, ep, filePath, addr, cfg)
	})
	return nil
}

// StartReceiveTarget begins dialing target to download a file into outputDir.
func StartReceiveTarget(id uuid.UUID, target, outputDir string) error {
	c, ok := lookup(id)
	if !ok {
		return ErrUnknownHandle
	}
	addr, err := ticket.ParseConnectTarget(target)
	if err != nil {
		return err
	}
	c.start(func(ctx context.Context, ep overlay.Endpoint, cfg transfer.Config) error {
		return transfer.ReceiveTarget(ctx, ep, outputDir, addr, cfg)
	})
	return nil
}

// StartReceiveListen begins listening for one peer to upload a file into outputDir.
func StartReceiveListen(id uuid.UUID, outputDir string) error {
	c, ok := lookup(id)
	if !ok {
		return ErrUnknownHandle
	}
	c.start(func(ctx context.Context, ep overlay.Endpoint, cfg transfer.Config) error {
		return transfer.ReceiveListen(ctx, ep, outputDir, cfg)
	})
	return nil
}

// PollEvent returns the next queued event for the session running on id,
// if any. ok is false both when the handle is unknown and when the queue
// is simply empty; callers that need to distinguish the two should keep
// their own record of which handles they created.
func PollEvent(id uuid.UUID) (event.Event, bool) {
	c, ok := lookup(id)
	if !ok {
		return event.Event{}, false
	}
	return c.queue.Poll()
}

// Cancel stops the session currently running on id, if any.
func Cancel(id uuid.UUID) error {
	c, ok := lookup(id)
	if !ok {
		return ErrUnknownHandle
	}

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel == nil {
		return ErrSessionRunning
	}
	cancel()
	return nil
}

// Destroy cancels any running session and removes id from the registry.
// The handle is invalid for any further call afterward.
func Destroy(id uuid.UUID) error {
	c, ok := lookup(id)
	if !ok {
		return ErrUnknownHandle
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	registryMu.Lock()
	delete(registry, id)
	registryMu.Unlock()

	logrus.WithFields(logrus.Fields{"function": "Destroy", "handle": id}).Info("controller destroyed")
	return nil
}

package transfer

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/opd-ai/p2psh/event"
)

// DefaultChunkSize is the size of each DATA-phase plaintext chunk before
// Noise sealing and framing. It stays well under frame.MaxPayload once
// the AEAD tag is added.
const DefaultChunkSize = 32 * 1024

// DefaultStallTimeout is the default value of Config.StallTimeout. The
// session phases in this package do not apply it: frame reads block until
// data arrives, the connection closes, or the stream returns an error.
const DefaultStallTimeout = 30 * time.Second

// DefaultProgressRate bounds how often KindProgress events are emitted
// during the DATA phase, independent of how small the chunk size is.
const DefaultProgressRate = 10 // events per second

// Config holds the tunables for one transfer session, assembled through
// functional options so embedders only override what they need.
type Config struct {
	ChunkSize    int
	StallTimeout time.Duration
	Sink         event.Sink

	progressLimiter *rate.Limiter
}

// Option configures a Config.
type Option func(*Config)

// WithSink attaches the event sink a session reports to. Embedders that
// want push-style delivery pass a Sink built from event.SinkFunc; pollers
// pass an *event.Queue. Omitting it leaves the session silent aside from
// its returned error.
func WithSink(sink event.Sink) Option {
	return func(c *Config) { c.Sink = sink }
}

// WithChunkSize overrides DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(c *Config) { c.ChunkSize = n }
}

// WithStallTimeout overrides DefaultStallTimeout.
func WithStallTimeout(d time.Duration) Option {
	return func(c *Config) { c.StallTimeout = d }
}

// NewConfig builds a Config from opts, filling in defaults for anything
// left unset.
func NewConfig(opts ...Option) Config {
	c := Config{
		ChunkSize:    DefaultChunkSize,
		StallTimeout: DefaultStallTimeout,
	}
	for _, opt := range opts {
		opt(&c)
	}
	c.progressLimiter = rate.NewLimiter(rate.Limit(DefaultProgressRate), 1)
	return c
}

func (c Config) emit(e event.Event) {
	if c.Sink != nil {
		c.Sink.OnEvent(e)
	}
}

// allowProgress reports whether enough time has passed since the last
// KindProgress emission to emit another one; the final chunk always
// passes regardless of rate so the terminal progress value is never lost.
func (c Config) allowProgress(final bool) bool {
	if final {
		return true
	}
	return c.progressLimiter.Allow()
}

// Package event defines the typed progress/event stream exposed to
// front-ends (CLI, mobile embedding) and a terminal progress-bar renderer
// that a front-end can feed with Progress events.
package event

// Kind tags the variant carried by an Event.
type Kind uint8

const (
	// KindStatus carries a free-form human status message.
	KindStatus Kind = iota
	// KindTicket carries the rendezvous ticket string the listener published.
	KindTicket
	// KindQRPayload carries the string a front-end should render as a QR code.
	KindQRPayload
	// KindHandshakeCode carries the short verification code for both peers to compare.
	KindHandshakeCode
	// KindProgress carries a byte-count progress update for the DATA phase.
	KindProgress
	// KindConnectionPath carries the negotiated connection path type.
	KindConnectionPath
	// KindCompleted is the terminal success event.
	KindCompleted
	// KindError is the terminal failure event.
	KindError
)

// PathKind enumerates the connection path a session ended up using.
type PathKind uint8

const (
	// PathNone indicates no connection path information is available yet.
	PathNone PathKind = iota
	// PathDirect indicates a direct (hole-punched) UDP path.
	PathDirect
	// PathRelay indicates traffic is flowing through a relay.
	PathRelay
	// PathMixed indicates a UDP path upgraded from an initial relay hop.
	PathMixed
)

// ErrorCode is the stable, front-end-facing identifier for a terminal
// failure, independent of the Go error chain that produced it.
type ErrorCode string

const (
	ErrBadTicket         ErrorCode = "bad_ticket"
	ErrEndpointBindFailed ErrorCode = "endpoint_bind_failed"
	ErrRelayTimeout      ErrorCode = "relay_timeout"
	ErrDialFailed        ErrorCode = "dial_failed"
	ErrAcceptFailed      ErrorCode = "accept_failed"
	ErrHandshakeFailed   ErrorCode = "handshake_failed"
	ErrFrameTooLarge     ErrorCode = "frame_too_large"
	ErrPeerClosed        ErrorCode = "peer_closed"
	ErrReceiverRejected  ErrorCode = "receiver_rejected"
	ErrIncompleteTransfer ErrorCode = "incomplete_transfer"
	ErrChecksumMismatch  ErrorCode = "checksum_mismatch"
	ErrTailAckMismatch   ErrorCode = "tail_ack_mismatch"
	ErrLocalFileChanged  ErrorCode = "local_file_changed"
	ErrIO                ErrorCode = "io_error"
	ErrTransfer          ErrorCode = "transfer_error"
)

// Event is the tagged union delivered to an EventSink. Only the fields
// relevant to Kind are populated; the rest are zero values.
type Event struct {
	Kind Kind

	// KindStatus
	Message string

	// KindTicket / KindQRPayload / KindHandshakeCode
	Value string

	// KindProgress
	Done, Total uint64

	// KindConnectionPath
	Path      PathKind
	LatencyMs *int64

	// KindCompleted
	FileName  string
	SizeBytes uint64
	SavedPath string

	// KindError
	Code ErrorCode
	Err  error
}

// Status builds a KindStatus event.
func Status(message string) Event { return Event{Kind: KindStatus, Message: message} }

// Ticket builds a KindTicket event.
func Ticket(value string) Event { return Event{Kind: KindTicket, Value: value} }

// QRPayload builds a KindQRPayload event.
func QRPayload(value string) Event { return Event{Kind: KindQRPayload, Value: value} }

// HandshakeCode builds a KindHandshakeCode event.
func HandshakeCode(value string) Event { return Event{Kind: KindHandshakeCode, Value: value} }

// Progress builds a KindProgress event.
func Progress(done, total uint64) Event {
	return Event{Kind: KindProgress, Done: done, Total: total}
}

// ConnectionPath builds a KindConnectionPath event.
func ConnectionPath(path PathKind, latencyMs *int64) Event {
	return Event{Kind: KindConnectionPath, Path: path, LatencyMs: latencyMs}
}

// Completed builds a KindCompleted terminal event.
func Completed(fileName string, sizeBytes uint64, savedPath string) Event {
	return Event{Kind: KindCompleted, FileName: fileName, SizeBytes: sizeBytes, SavedPath: savedPath}
}

// Error builds a KindError terminal event.
func Error(code ErrorCode, err error) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{Kind: KindError, Code: code, Err: err, Message: msg}
}

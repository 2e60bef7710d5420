// Command p2psh is the reference CLI front-end for the p2psh library: a
// thin adapter over package controller that renders the typed event
// stream either as human-readable terminal output (with a progress bar
// and an optional QR code) or as newline-delimited JSON for scripting.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/opd-ai/p2psh/controller"
	"github.com/opd-ai/p2psh/event"
	"github.com/opd-ai/p2psh/overlay"
)

// version is set by the release build via -ldflags; it stays "dev" otherwise.
var version = "dev"

var (
	flagJSON    bool
	flagSTUN    []string
	flagTURN    []string
	flagRelay   string
	flagTo      string
	flagOutput  string
	flagQR      bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "p2psh",
		Short: "Peer-to-peer authenticated file transfer over a NAT-traversing overlay",
	}

	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit newline-delimited JSON events instead of human-readable output")
	root.PersistentFlags().StringSliceVar(&flagSTUN, "stun", []string{"stun:stun.l.google.com:19302"}, "STUN server URLs for direct-path discovery")
	root.PersistentFlags().StringSliceVar(&flagTURN, "turn", nil, "TURN server URLs (url=username:credential) for relay candidates")
	root.PersistentFlags().StringVar(&flagRelay, "relay", "", "rendezvous relay websocket URL")

	root.AddCommand(newSendCmd(), newReceiveCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the p2psh version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send FILE",
		Short: "Send a file, either waiting for a peer or dialing one directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, args[0])
		},
	}
	cmd.Flags().StringVar(&flagTo, "to", "", "ticket or host:port of the peer to dial; omit to wait for an incoming connection")
	return cmd
}

func newReceiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receive [TARGET]",
		Short: "Receive a file, either waiting for a peer or dialing one directly",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			return runReceive(cmd, target)
		},
	}
	cmd.Flags().StringVar(&flagOutput, "output", ".", "directory to save the received file into")
	cmd.Flags().BoolVar(&flagQR, "qr", false, "render the published ticket as a terminal QR code")
	return cmd
}

func runSend(cmd *cobra.Command, file string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id := controller.CreateController(newBind())
	defer controller.Destroy(id)

	var startErr error
	if flagTo == "" {
		startErr = controller.StartSendWait(id, file)
	} else {
		startErr = controller.StartSendToTicket(id, file, flagTo)
	}
	if startErr != nil {
		return startErr
	}

	return runEventLoop(ctx, id)
}

func runReceive(cmd *cobra.Command, target string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id := controller.CreateController(newBind())
	defer controller.Destroy(id)

	var startErr error
	if target == "" {
		startErr = controller.StartReceiveListen(id, flagOutput)
	} else {
		startErr = controller.StartReceiveTarget(id, target, flagOutput)
	}
	if startErr != nil {
		return startErr
	}

	return runEventLoop(ctx, id)
}

func newBind() overlay.BindFunc {
	var turns []overlay.TURNServer
	for _, t := range flagTURN {
		server := overlay.TURNServer{URL: t}
		if i := strings.LastIndex(t, "="); i >= 0 {
			if user, cred, ok := strings.Cut(t[i+1:], ":"); ok {
				server.URL, server.Username, server.Credential = t[:i], user, cred
			}
		}
		turns = append(turns, server)
	}

	ov := overlay.NewIceOverlay(overlay.IceConfig{
		STUNServers: flagSTUN,
		TURNServers: turns,
		RelayURL:    flagRelay,
	})
	return ov.Bind
}

// runEventLoop polls the controller for events until a terminal event
// arrives or ctx is cancelled, rendering each one as it comes in.
func runEventLoop(ctx context.Context, id uuid.UUID) error {
	renderer := newRenderer(flagJSON, flagQR)
	defer renderer.close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		e, ok := controller.PollEvent(id)
		if !ok {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		renderer.render(e)

		if e.Kind == event.KindCompleted {
			return nil
		}
		if e.Kind == event.KindError {
			return e.Err
		}
	}
}

type jsonEvent struct {
	Kind      string `json:"kind"`
	Message   string `json:"message,omitempty"`
	Value     string `json:"value,omitempty"`
	Done      uint64 `json:"done,omitempty"`
	Total     uint64 `json:"total,omitempty"`
	Path      string `json:"path,omitempty"`
	LatencyMs *int64 `json:"latency_ms,omitempty"`
	FileName  string `json:"file_name,omitempty"`
	SizeBytes uint64 `json:"size_bytes,omitempty"`
	SavedPath string `json:"saved_path,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

type renderer struct {
	jsonMode bool
	qr       bool
	bar      *event.TerminalProgress
}

func newRenderer(jsonMode, qr bool) *renderer {
	return &renderer{jsonMode: jsonMode, qr: qr}
}

func (r *renderer) close() {
	if r.bar != nil {
		r.bar.Close()
	}
}

func (r *renderer) render(e event.Event) {
	if r.jsonMode {
		r.renderJSON(e)
		return
	}
	r.renderHuman(e)
}

func (r *renderer) renderJSON(e event.Event) {
	je := jsonEvent{
		Kind:      kindName(e.Kind),
		Message:   e.Message,
		Value:     e.Value,
		Done:      e.Done,
		Total:     e.Total,
		Path:      pathName(e.Path),
		LatencyMs: e.LatencyMs,
		FileName:  e.FileName,
		SizeBytes: e.SizeBytes,
		SavedPath: e.SavedPath,
		Code:      string(e.Code),
	}
	if e.Err != nil {
		je.Error = e.Err.Error()
	}
	out, err := json.Marshal(je)
	if err != nil {
		return
	}
	fmt.Println(string(out))
}

func (r *renderer) renderHuman(e event.Event) {
	switch e.Kind {
	case event.KindStatus:
		fmt.Println(e.Message)
	case event.KindTicket:
		fmt.Printf("Ticket: %s\n", e.Value)
		if r.qr {
			printQR(e.Value)
		}
	case event.KindQRPayload:
		// already rendered alongside KindTicket when --qr is set
	case event.KindHandshakeCode:
		fmt.Printf("Verification code: %s (compare with your peer)\n", e.Value)
	case event.KindConnectionPath:
		fmt.Printf("Connection path: %s\n", pathName(e.Path))
	case event.KindProgress:
		if r.bar == nil {
			r.bar = event.NewTerminalProgress("transfer", e.Total)
		}
		r.bar.OnEvent(e)
	case event.KindCompleted:
		if r.bar != nil {
			r.bar.OnEvent(e)
		}
		if e.SavedPath != "" {
			fmt.Printf("Saved %s (%d bytes) to %s\n", e.FileName, e.SizeBytes, e.SavedPath)
		} else {
			fmt.Printf("Sent %s (%d bytes)\n", e.FileName, e.SizeBytes)
		}
	case event.KindError:
		if r.bar != nil {
			r.bar.OnEvent(e)
		}
		fmt.Fprintf(os.Stderr, "error (%s): %v\n", e.Code, e.Err)
	}
}

func printQR(payload string) {
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not render QR code: %v\n", err)
		return
	}
	fmt.Println(qr.ToSmallString(false))
}

func kindName(k event.Kind) string {
	switch k {
	case event.KindStatus:
		return "status"
	case event.KindTicket:
		return "ticket"
	case event.KindQRPayload:
		return "qr_payload"
	case event.KindHandshakeCode:
		return "handshake_code"
	case event.KindProgress:
		return "progress"
	case event.KindConnectionPath:
		return "connection_path"
	case event.KindCompleted:
		return "completed"
	case event.KindError:
		return "error"
	default:
		return "unknown"
	}
}

func pathName(p event.PathKind) string {
	switch p {
	case event.PathDirect:
		return "direct"
	case event.PathRelay:
		return "relay"
	case event.PathMixed:
		return "mixed"
	default:
		return "none"
	}
}

package event

import (
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// TerminalProgress renders a DATA-phase progress bar from Progress
// events. It implements Sink; the CLI front-end feeds it the events it
// polls from its queue. Package transfer does not create one itself: a
// session with no Sink attached produces no progress output.
type TerminalProgress struct {
	progress *mpb.Progress
	bar      *mpb.Bar
	fileName string
}

// NewTerminalProgress creates a fallback progress renderer for a transfer
// of the given file name and total size.
func NewTerminalProgress(fileName string, total uint64) *TerminalProgress {
	p := mpb.New()
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(fileName, decor.WC{W: len(fileName) + 1, C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .2f / % .2f"),
		),
	)

	return &TerminalProgress{progress: p, bar: bar, fileName: fileName}
}

// OnEvent implements Sink, updating the bar on Progress events and
// finishing it on the terminal events.
func (t *TerminalProgress) OnEvent(e Event) {
	switch e.Kind {
	case KindProgress:
		t.bar.SetCurrent(int64(e.Done))
	case KindCompleted:
		t.progress.Wait()
	case KindError:
		t.bar.Abort(false)
		t.progress.Wait()
	}
}

// Close waits for the underlying mpb.Progress to finish rendering.
func (t *TerminalProgress) Close() {
	t.progress.Wait()
}

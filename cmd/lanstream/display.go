package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/atotto/clipboard"

	"github.com/VitHongHG/LANstream/internal/session"
)

// fanoutNotifier forwards machine snapshots to every registered display
// surface (terminal printer, console server).
type fanoutNotifier struct {
	mu      sync.Mutex
	targets []session.Notifier
}

func (f *fanoutNotifier) Add(n session.Notifier) {
	f.mu.Lock()
	f.targets = append(f.targets, n)
	f.mu.Unlock()
}

func (f *fanoutNotifier) Publish(snap session.Snapshot) {
	f.mu.Lock()
	targets := make([]session.Notifier, len(f.targets))
	copy(targets, f.targets)
	f.mu.Unlock()

	for _, n := range targets {
		n.Publish(snap)
	}
}

// printer renders snapshots on the terminal and mirrors each newly published
// blob to the system clipboard.
type printer struct {
	out          io.Writer
	useClipboard bool
	logger       *slog.Logger

	mu   sync.Mutex
	last session.Snapshot
}

func newPrinter(out io.Writer, useClipboard bool, logger *slog.Logger) *printer {
	return &printer{out: out, useClipboard: useClipboard, logger: logger}
}

func (p *printer) Publish(snap session.Snapshot) {
	p.mu.Lock()
	prev := p.last
	p.last = snap
	p.mu.Unlock()

	if snap.LocalBlob != "" && snap.LocalBlob != prev.LocalBlob {
		fmt.Fprintf(p.out, "\nlocal %s blob (copy to the other side):\n%s\n", snap.Role, snap.LocalBlob)
		if snap.GatheringComplete {
			fmt.Fprintln(p.out, "(gathering complete; the blob will not change again)")
		}
		if p.useClipboard {
			if err := clipboard.WriteAll(snap.LocalBlob); err != nil {
				p.logger.Warn("copy blob to clipboard", "err", err)
			} else {
				fmt.Fprintln(p.out, "(copied to clipboard)")
			}
		}
	}

	if snap.State != prev.State {
		fmt.Fprintf(p.out, "status: %s\n", snap.State)
	}

	if len(snap.RemoteTrackIDs) > len(prev.RemoteTrackIDs) {
		fmt.Fprintf(p.out, "receiving remote track (%d total)\n", len(snap.RemoteTrackIDs))
	}

	if snap.LastError != "" && snap.LastError != prev.LastError {
		fmt.Fprintf(p.out, "problem: %s\n", snap.LastError)
	}
}

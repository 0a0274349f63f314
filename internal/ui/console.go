// Package ui renders session state on the console. It is a read-only
// consumer: everything it shows comes from session snapshots and the alert
// notifier, never from engine internals.
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ShabbirHasan1/alt-sendme/internal/notify"
	"github.com/ShabbirHasan1/alt-sendme/internal/session"
)

// renderInterval paces snapshot polling; fast enough to feel live, slow
// enough not to flood the terminal.
const renderInterval = 150 * time.Millisecond

// Console renders transfer progress with a progress bar per transport phase.
type Console struct {
	bar       *progressbar.ProgressBar
	operation string
}

// NewConsole creates a renderer; operation is "Sending" or "Receiving".
func NewConsole(operation string) *Console {
	return &Console{operation: operation}
}

// PrintAlert is the notify callback: it prints newly opened alerts.
func PrintAlert(a notify.Alert) {
	if !a.Open {
		return
	}
	fmt.Printf("\n[%s] %s: %s\n", a.Severity, a.Title, a.Description)
}

// RunSender polls sender snapshots until the session completes or ctx ends.
func (c *Console) RunSender(ctx context.Context, snap func() session.SenderSnapshot) {
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	var importShown bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s := snap()
		if s.Importing.Active && !importShown {
			fmt.Println("Importing files...")
			importShown = true
		}

		c.renderTransfer(s.Phase, s.Transfer)

		if s.Phase == session.PhaseCompleted {
			c.finishBar()
			if s.Metadata != nil {
				printSummary(s.Metadata)
			}
			return
		}
	}
}

// RunReceiver polls receiver snapshots until the session completes or ctx
// ends.
func (c *Console) RunReceiver(ctx context.Context, snap func() session.ReceiverSnapshot) {
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	var resumeShown bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s := snap()
		if s.ResumedFrom > 0 && !resumeShown {
			fmt.Printf("Resuming from %d bytes\n", s.ResumedFrom)
			resumeShown = true
		}

		c.renderTransfer(s.Phase, s.Transfer)

		if s.Exporting.Active {
			c.finishBar()
			fmt.Printf("\rExporting files: %d/%d", s.Exporting.Current, s.Exporting.Total)
		}

		if s.Phase == session.PhaseCompleted {
			c.finishBar()
			fmt.Println()
			if s.Metadata != nil {
				printSummary(s.Metadata)
			}
			return
		}
	}
}

func (c *Console) renderTransfer(phase session.Phase, t session.TransferProgress) {
	if phase != session.PhaseTransporting || t.TotalBytes <= 0 {
		return
	}
	if c.bar == nil {
		c.bar = progressbar.DefaultBytes(t.TotalBytes, c.operation)
	}
	c.bar.Set64(t.BytesTransferred)
}

func (c *Console) finishBar() {
	if c.bar != nil {
		c.bar.Finish()
		c.bar = nil
	}
}

func printSummary(md *session.Metadata) {
	fmt.Println("=========================================================")
	fmt.Println("Transfer complete!")
	fmt.Printf("File: %s\n", md.FileName)
	fmt.Printf("Total size: %d bytes\n", md.FileSize)
	fmt.Printf("Duration: %.2f seconds\n", float64(md.DurationMS)/1000)
	if md.DownloadPath != "" {
		fmt.Printf("Saved to: %s\n", md.DownloadPath)
	}
	fmt.Println("=========================================================")
}

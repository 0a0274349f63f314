package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ShabbirHasan1/alt-sendme/internal/session"
	"github.com/ShabbirHasan1/alt-sendme/internal/ui"
)

type SendFlags struct {
	Path       string
	CopyTicket bool
}

var sendFlags SendFlags

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Share a file or directory and print its ticket",
	Long: `Share a file or directory. This will:

1. Import the path (index and checksum its files)
2. Offer it through the signalling backend and print a ticket
3. Stream the bytes once a receiver redeems the ticket

Hand the ticket to the receiver out-of-band. Ctrl-C stops sharing.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if sendFlags.Path == "" {
			return fmt.Errorf("path is required")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSender(&sendFlags); err != nil {
			logrus.Fatalf("Sender failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&sendFlags.Path, "path", "p", "", "Path to file or directory to share (required)")
	sendCmd.Flags().BoolVar(&sendFlags.CopyTicket, "copy", false, "Copy the ticket to the clipboard")

	sendCmd.MarkFlagRequired("path")

	viper.BindPFlag("send.path", sendCmd.Flags().Lookup("path"))
}

func runSender(flags *SendFlags) error {
	ctx := createContext()

	svc, err := createServices(ctx)
	if err != nil {
		return err
	}

	sender := session.NewSender(svc.engine, svc.alerts, ui.SystemClipboard{}, svc.reporter)
	detach := sender.Attach(svc.bus)
	defer detach()

	if err := sender.SelectPath(flags.Path); err != nil {
		return err
	}

	kind, err := svc.engine.PathType(ctx, flags.Path)
	if err != nil {
		return err
	}
	fmt.Printf("Sharing %s: %s\n", kind, flags.Path)

	if err := sender.StartSharing(ctx); err != nil {
		return err
	}

	snap := sender.Snapshot()
	fmt.Printf("Ticket: %s\n", snap.Ticket)
	if flags.CopyTicket {
		sender.CopyTicket()
	}
	fmt.Println("Waiting for a receiver...")

	console := ui.NewConsole("Sending")
	console.RunSender(ctx, sender.Snapshot)

	// Unconditional teardown; the session resets even if the engine
	// command fails.
	return sender.StopSharing(context.Background())
}

package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ShabbirHasan1/alt-sendme/internal/session"
	"github.com/ShabbirHasan1/alt-sendme/internal/ui"
	"github.com/ShabbirHasan1/alt-sendme/pkg/utils"
)

type ReceiveFlags struct {
	Ticket  string
	DstPath string
}

var receiveFlags ReceiveFlags

// receiveCmd represents the receive command
var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Redeem a ticket and receive the transfer",
	Long: `Receive a transfer. This will:

1. Redeem the ticket against the signalling backend
2. Receive the byte stream, resuming from any previously staged bytes
3. Export the received files into the destination directory

When --ticket or --dst are omitted they are prompted for interactively.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runReceiver(&receiveFlags); err != nil {
			logrus.Fatalf("Receiver failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().StringVarP(&receiveFlags.Ticket, "ticket", "t", "", "Ticket from the sender")
	receiveCmd.Flags().StringVarP(&receiveFlags.DstPath, "dst", "d", "", "Destination directory for received files")

	viper.BindPFlag("receive.dst", receiveCmd.Flags().Lookup("dst"))
}

func runReceiver(flags *ReceiveFlags) error {
	ctx := createContext()

	svc, err := createServices(ctx)
	if err != nil {
		return err
	}

	receiver := session.NewReceiver(svc.engine, svc.alerts, ui.ConsolePicker{}, svc.reporter)
	receiver.SetResumeDisplayWindow(cfg.Session.ResumeDisplayWindow)
	detach := receiver.Attach(svc.bus)
	defer detach()

	if flags.DstPath != "" {
		receiver.SetSavePath(flags.DstPath)
	} else {
		receiver.BrowseFolder(ctx)
	}
	if receiver.SavePath() == "" {
		return session.ErrPickerCancelled
	}

	ticket := flags.Ticket
	if ticket == "" {
		ticket, err = utils.AskForTicket(ctx)
		if err != nil {
			return err
		}
	}

	if err := receiver.Receive(ctx, ticket); err != nil {
		return err
	}

	console := ui.NewConsole("Receiving")
	console.RunReceiver(ctx, receiver.Snapshot)

	if ctx.Err() != nil {
		// Interrupted mid-transfer; the stage file stays for a resume.
		receiver.Reset()
	}
	return nil
}

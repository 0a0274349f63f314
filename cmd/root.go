package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ShabbirHasan1/alt-sendme/internal/analytics"
	"github.com/ShabbirHasan1/alt-sendme/internal/config"
	"github.com/ShabbirHasan1/alt-sendme/internal/engine"
	"github.com/ShabbirHasan1/alt-sendme/internal/events"
	"github.com/ShabbirHasan1/alt-sendme/internal/notify"
	"github.com/ShabbirHasan1/alt-sendme/internal/signalling"
	"github.com/ShabbirHasan1/alt-sendme/internal/ui"
)

var (
	cfg     *config.Config
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "alt-sendme",
	Short: "alt-sendme - peer-to-peer file transfer",
	Long: `alt-sendme transfers files and directories directly between two machines
over a WebRTC data channel.

The sender offers a path and gets back a short ticket; the receiver redeems
that ticket and the bytes flow peer-to-peer, resuming from whatever a broken
attempt already staged.

Usage:
  Send:    alt-sendme send --path /path/to/share
  Receive: alt-sendme receive --ticket CODE --dst /path/to/save`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetLevel(logrus.WarnLevel)
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}

		initConfig()

		cfg = config.NewDefaultConfig()
		if err := viper.Unmarshal(cfg); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.alt-sendme.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	viper.SetEnvPrefix("ALTSENDME")
	viper.AutomaticEnv()
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			logrus.Warnf("Could not find home directory: %v", err)
			return
		}

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".alt-sendme")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logrus.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// createContext creates a context that cancels on interrupt signals
func createContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	return ctx
}

// services is the wired orchestration stack shared by both commands.
type services struct {
	bus      *events.Bus
	alerts   *notify.Notifier
	engine   *engine.Engine
	reporter analytics.Reporter
}

// createServices creates and wires up the event bus, notifier, engine and
// analytics reporter.
func createServices(ctx context.Context) (*services, error) {
	bus := events.NewBus()
	alerts := notify.NewNotifier(ui.PrintAlert)

	signals, err := signalling.NewDefaultService(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &services{
		bus:      bus,
		alerts:   alerts,
		engine:   engine.New(cfg, bus, signals),
		reporter: analytics.NewHTTPReporter(cfg.Analytics.Endpoint),
	}, nil
}

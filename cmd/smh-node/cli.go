package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	networkClient "github.com/tetragramaton/smh-node/internal/client/network"
	"github.com/tetragramaton/smh-node/internal/config"
	"github.com/tetragramaton/smh-node/internal/node"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	var opts Options

	rootCmd := &cobra.Command{
		Use:   "smh-node",
		Short: "Field node that forwards serial or Modbus readings to an MQTT broker",
		Long: `smh-node reads newline framed records from a serial port (or samples
Modbus registers), buffers them and publishes the buffer to an MQTT broker on a
fixed interval, reconnecting with bounded exponential backoff.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (compiled defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&opts.EnvFile, "env", "", "dotenv file with SMH_* overrides")
	rootCmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(buildRunCommand(&opts))
	rootCmd.AddCommand(buildIdentityCommand(&opts))

	return rootCmd
}

func buildRunCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the node until interrupted",
		Long:  "Run the node. SIGINT or SIGTERM stops it; SIGHUP reloads the configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := InitApp(*opts)
			if err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer func() { _ = app.Log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go watchReload(ctx, app, *opts)
			return app.Run(ctx)
		},
	}
}

func watchReload(ctx context.Context, app *App, opts Options) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			app.Log.Info("SIGHUP received, reloading configuration")
			app.Reload(opts)
		}
	}
}

func buildIdentityCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Print the client id and topics this node would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath, opts.EnvFile)
			if err != nil {
				return err
			}
			cc, err := cfg.ClientConfig()
			if err != nil {
				return err
			}

			host := networkClient.NewHost(networkClient.Config{
				Interface:    cfg.Network.Interface,
				HardwareAddr: cfg.Network.HardwareAddr,
			}, zap.NewNop())
			hw, err := host.HardwareAddr()
			if err != nil {
				return err
			}

			id, err := node.BuildIdentity(cc, hw)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "hardware address: %s\n", hw)
			fmt.Fprintf(out, "client id:        %s\n", id.ClientID)
			fmt.Fprintf(out, "publish topic:    %s\n", id.PublishTopic)
			fmt.Fprintf(out, "subscribe topic:  %s\n", id.SubscribeTopic)
			fmt.Fprintf(out, "broker:           %s:%d\n", cc.BrokerAddress, cc.BrokerPort)
			return nil
		},
	}
}

// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stacks-network/stacks-devnet/tests"
	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet"
	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet/flags"
	"github.com/stacks-network/stacks-devnet/utils/logging"
	"github.com/stacks-network/stacks-devnet/version"
)

const (
	networkTimeout   = 5 * time.Minute
	terminateTimeout = time.Minute
)

var errNetworkDirRequired = fmt.Errorf("--network-dir or %s are required", devnet.NetworkDirEnvName)

func main() {
	var (
		networkDir   string
		rawLogFormat string
		configFile   string
	)
	rootCmd := &cobra.Command{
		Use:           "devnetctl",
		Short:         "devnetctl commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return applyViper(cmd.Flags(), configFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&networkDir, "network-dir", os.Getenv(devnet.NetworkDirEnvName), "The path to the directory of a devnet")
	rootCmd.PersistentFlags().StringVar(&rawLogFormat, "log-format", logging.AutoString, logging.FormatDescription)
	rootCmd.PersistentFlags().StringVar(&configFile, configFileFlag, "", "[optional] A config file whose keys are flag names")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version details",
		RunE: func(*cobra.Command, []string) error {
			fmt.Fprint(os.Stdout, version.String(version.GitCommit))
			return nil
		},
	}
	rootCmd.AddCommand(versionCmd)

	var (
		networkVars *flags.NetworkVars
		metricsAddr string
	)
	startNetworkCmd := &cobra.Command{
		Use:   "start-network",
		Short: "Start a devnet and run it until interrupted",
		RunE: func(*cobra.Command, []string) error {
			log, err := tests.LoggerForFormat("", rawLogFormat)
			if err != nil {
				return err
			}
			opts, err := networkVars.ConfigOptions()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			registry := prometheus.NewRegistry()
			startCtx, cancel := context.WithTimeout(ctx, networkTimeout)
			defer cancel()
			network, err := devnet.StartNetwork(
				startCtx,
				opts,
				devnet.WithLogger(log),
				devnet.WithOutput(os.Stdout),
				devnet.WithRegistry(registry),
			)
			if err != nil {
				log.Error("failed to start network", zap.Error(err))
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
				defer cancel()
				if err := network.Terminate(ctx); err != nil {
					log.Error("failed to terminate network", zap.Error(err))
				}
			}()

			if err := linkLatest(network.Config.Dir); err != nil {
				return err
			}

			if len(metricsAddr) > 0 {
				server := serveMetrics(log, metricsAddr, registry)
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
					defer cancel()
					_ = server.Shutdown(ctx)
				}()
			}

			fmt.Fprintf(os.Stdout, "\nInspect this network from another shell with:\n")
			fmt.Fprintf(os.Stdout, " - export %s=%s\n", devnet.NetworkDirEnvName, network.Config.Dir)
			fmt.Fprintln(os.Stdout, "Press Ctrl-C to terminate it.")

			select {
			case <-ctx.Done():
				return nil
			case <-network.Failed():
				err := network.Err()
				log.Error("network failed", zap.Error(err))
				return err
			}
		},
	}
	networkVars = flags.NewNetworkFlagSetVars(startNetworkCmd.PersistentFlags())
	startNetworkCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "[optional] The address to serve prometheus metrics on, e.g. 127.0.0.1:9090")
	rootCmd.AddCommand(startNetworkCmd)

	stopNetworkCmd := &cobra.Command{
		Use:   "stop-network",
		Short: "Stop the processes of a devnet left running by a crashed orchestrator",
		RunE: func(*cobra.Command, []string) error {
			if len(networkDir) == 0 {
				return errNetworkDirRequired
			}
			log, err := tests.LoggerForFormat("", rawLogFormat)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
			defer cancel()
			if err := devnet.StopNetwork(ctx, log, networkDir); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Stopped network configured at: %s\n", networkDir)
			return nil
		},
	}
	rootCmd.AddCommand(stopNetworkCmd)

	var asJSON bool
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Print the events published by a devnet",
		RunE: func(*cobra.Command, []string) error {
			if len(networkDir) == 0 {
				return errNetworkDirRequired
			}
			config, err := devnet.ReadNetworkConfig(networkDir)
			if err != nil {
				return err
			}
			entries, err := devnet.ReadJournal(config.EventsDBPath())
			if err != nil {
				return err
			}
			if asJSON {
				encoder := json.NewEncoder(os.Stdout)
				for _, entry := range entries {
					if err := encoder.Encode(entry); err != nil {
						return err
					}
				}
				return nil
			}
			for _, entry := range entries {
				fmt.Fprintf(os.Stdout, "%6d %s %s\n", entry.Seq, entry.Time.Format(time.RFC3339Nano), entry.Event)
			}
			return nil
		},
	}
	eventsCmd.Flags().BoolVar(&asJSON, "json", false, "Whether to print one JSON object per event")
	rootCmd.AddCommand(eventsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "devnetctl failed: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// linkLatest symlinks the new network to 'latest' to simplify usage.
func linkLatest(networkDir string) error {
	latestSymlinkPath := filepath.Join(filepath.Dir(networkDir), "latest")
	if err := os.Remove(latestSymlinkPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Symlink(filepath.Base(networkDir), latestSymlinkPath)
}

func serveMetrics(log logging.Logger, addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("serving metrics", zap.String("address", "http://"+addr+"/metrics"))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return server
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/victornm/quizroom/internal/config"
	"github.com/victornm/quizroom/internal/server"
	"github.com/victornm/quizroom/internal/telemetry"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "quizroom",
		Short:         "Real-time quiz room server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file, defaults to $CONFIG_PATH")

	return cmd
}

func run(configPath string) error {
	envErr := godotenv.Load()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	c, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load config failed: %v\n", err)
		return err
	}

	telemetry.SetupLogger(os.Stdout, c.Log)
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		slog.Warn("main: load .env failed", "error", envErr)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		slog.Error("main: init server failed", "error", err)
		return err
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
	return nil
}

// loadConfig reads the optional config file on top of the defaults.
func loadConfig(path string) (server.Config, error) {
	c := server.DefaultConfig()

	if err := config.Load(path, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/siohaza/q2match/internal/server"
	"github.com/siohaza/q2match/pkg/config"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	version    = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "q2match",
	Short: "q2match - Quake II match server",
	Long: `q2match runs the match layer of a Quake II server: warmup and ready-up,
gametype rules, map voting and rotation, team joins, menus and IP filters.`,
	Version: version,
	Run:     runServer,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the q2match server",
	Long:  "Start the q2match server with the specified configuration. Console commands are read from stdin.",
	Run:   runServer,
}

var mapsCmd = &cobra.Command{
	Use:   "maps",
	Short: "List the map pool",
	Long:  "Load the map database and cycle file from the configuration and print them",
	Run: func(cmd *cobra.Command, args []string) {
		runConsole(func(srv *server.Server) error {
			if _, err := srv.ReloadMaps(); err != nil {
				return err
			}
			return srv.ServerCommand(os.Stdout, "maplist")
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [count]",
	Short: "Show recently played matches",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		n := 10
		if len(args) == 1 {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid count %q\n", args[0])
				os.Exit(1)
			}
			n = v
		}
		runConsole(func(srv *server.Server) error {
			return srv.ServerCommand(os.Stdout, fmt.Sprintf("history %d", n))
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("q2match v%s\n", version)
		fmt.Println("Quake II match server")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.toml", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(mapsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// runConsole builds a server for a one-shot command without starting a
// level.
func runConsole(fn func(srv *server.Server) error) {
	cfg := loadConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	}))

	srv, err := server.New(cfg, newConsoleEngine(logger), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}
	defer srv.Stop()

	if err := fn(srv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	var logWriter io.Writer = os.Stdout
	if cfg.Server.LogToFile {
		logDir := "logs"
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
			os.Exit(1)
		}

		logPath := filepath.Join(logDir, fmt.Sprintf("q2match_%d.log", time.Now().Unix()))
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer logFile.Close()

		logWriter = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting q2match server", "version", version)

	srv, err := server.New(cfg, newConsoleEngine(logger), logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	logger.Info("server running",
		"name", cfg.Server.Name,
		"gametype", cfg.Server.Gametype,
		"map", srv.MapName(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs := make(chan func(), 16)
	go readConsole(ctx, os.Stdin, srv, jobs)

	if err := srv.Run(ctx, jobs); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server loop failed", "error", err)
	}

	logger.Info("shutting down server")
	srv.Stop()
	logger.Info("server stopped successfully")
}

// readConsole hands each stdin line to the frame goroutine.
func readConsole(ctx context.Context, r io.Reader, srv *server.Server, jobs chan<- func()) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		select {
		case jobs <- func() { srv.ServerCommand(os.Stdout, line) }:
		case <-ctx.Done():
			return
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

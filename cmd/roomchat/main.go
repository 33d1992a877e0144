package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	intrnl "roomchat/internal"
	"roomchat/internal/app"
	"roomchat/internal/log"
)

var (
	flagConfig string
	cfg        *app.Config
	logCloser  io.Closer
)

// flag name -> config key
var flagKeys = map[string]string{
	"server-url":    "client.server_url",
	"user":          "client.username",
	"download-dir":  "client.download_dir",
	"timezone":      "client.timezone",
	"single-flight": "client.admin_single_flight",
	"log-level":     "log.level",
	"log-file":      "log.file",
	"log-pretty":    "log.pretty",
	"addr":          "server.addr",
	"db":            "server.db_path",
	"upload-dir":    "server.upload_dir",
	"admins":        "server.admins",
	"rooms":         "server.rooms",
}

var rootCmd = &cobra.Command{
	Use:           "roomchat",
	Short:         "Terminal chat rooms with moderation",
	Version:       intrnl.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the chat server",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

var chatCmd = &cobra.Command{
	Use:   "chat [room]",
	Short: "Open a chat room",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChat,
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Open the moderation view",
	Args:  cobra.NoArgs,
	RunE:  runAdmin,
}

var bannedCmd = &cobra.Command{
	Use:   "banned",
	Short: "Show your ban countdown",
	Args:  cobra.NoArgs,
	RunE:  runBanned,
}

var localCmd = &cobra.Command{
	Use:   "local [room]",
	Short: "Run a private server on a random port and open a room on it",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLocal,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "config file (default ./roomchat.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "write logs to this file")
	flags.Bool("log-pretty", false, "human readable logs")
	flags.String("server-url", "", "server base URL, e.g. http://localhost:8080")
	flags.String("user", "", "username to sign in with")
	flags.String("timezone", "", "timezone for ban times (default local)")

	for _, c := range []*cobra.Command{serverCmd, localCmd} {
		c.Flags().String("addr", "", "server listen address")
		c.Flags().String("db", "", "sqlite database path")
		c.Flags().String("upload-dir", "", "directory for uploaded files")
		c.Flags().StringSlice("admins", nil, "usernames with the moderator role")
		c.Flags().StringSlice("rooms", nil, "rooms created at startup")
	}
	adminCmd.Flags().Bool("single-flight", false, "skip a poll while the previous one is still running")
	for _, c := range []*cobra.Command{chatCmd, localCmd} {
		c.Flags().String("download-dir", "", "where /download saves files")
	}

	rootCmd.PersistentPreRunE = loadConfig
	rootCmd.AddCommand(serverCmd, chatCmd, adminCmd, bannedCmd, localCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if logCloser != nil {
		_ = logCloser.Close()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "roomchat: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	v, err := app.NewViper(flagConfig)
	if err != nil {
		return err
	}
	bindFlags(cmd, v)
	cfg, err = app.Decode(v)
	if err != nil {
		return err
	}

	// the terminal views own stdout, so they always log to a file
	if cmd != serverCmd && cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(os.TempDir(), "roomchat.log")
	}
	logCloser, err = log.Init(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	return nil
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	logger := log.L()
	handle, err := app.RunServer(cmd.Context(), cfg.Server, logger)
	if err != nil {
		return err
	}
	logger.Info().Str("addr", handle.Addr()).Str("db", cfg.Server.DBPath).Strs("rooms", cfg.Server.Rooms).Msg("[server] listening")
	return handle.Wait()
}

func runChat(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		cfg.Client.Room = args[0]
	}
	return app.RunChat(cmd.Context(), cfg.Client, clientLogger())
}

func runAdmin(cmd *cobra.Command, _ []string) error {
	return app.RunAdmin(cmd.Context(), cfg.Client, clientLogger())
}

func runBanned(cmd *cobra.Command, _ []string) error {
	return app.RunBanned(cmd.Context(), cfg.Client)
}

func runLocal(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		cfg.Client.Room = args[0]
	}
	if !cmd.Flags().Changed("addr") {
		cfg.Server.Addr = "127.0.0.1:0"
	}
	logger := log.L()
	handle, err := app.RunServer(cmd.Context(), cfg.Server, logger)
	if err != nil {
		return err
	}
	defer stopServer(handle)

	cfg.Client.ServerURL = handle.URL()
	logger.Info().Str("url", cfg.Client.ServerURL).Msg("[local] server started")
	if err := app.RunChat(cmd.Context(), cfg.Client, clientLogger()); err != nil {
		return err
	}
	stopServer(handle)
	return handle.Wait()
}

func clientLogger() zerolog.Logger {
	return log.L().With().Str("component", "client").Logger()
}

func stopServer(handle *app.ServerHandle) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = handle.Stop(shutdownCtx)
}

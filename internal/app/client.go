package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	intrnl "roomchat/internal"
	"roomchat/internal/admin"
	"roomchat/internal/api"
	"roomchat/internal/model"
)

// Login signs in to the configured server and returns a client carrying the
// session cookie.
func Login(ctx context.Context, cfg ClientConfig) (*api.Client, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("server URL is required")
	}
	if strings.TrimSpace(cfg.Username) == "" {
		return nil, errors.New("username is required")
	}
	client, err := api.New(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	if err := client.Login(ctx, cfg.Username); err != nil {
		return nil, fmt.Errorf("login as %q: %w", cfg.Username, err)
	}
	return client, nil
}

// RunChat launches the chat view for cfg.Room. A banned user gets the ban
// countdown instead.
func RunChat(ctx context.Context, cfg ClientConfig, logger zerolog.Logger) error {
	client, err := Login(ctx, cfg)
	if err != nil {
		return err
	}
	room := model.ID(strings.TrimPrefix(strings.TrimSpace(cfg.Room), "#"))
	if room.IsZero() {
		return errors.New("room is required")
	}
	err = intrnl.RunChat(ctx, client, room, cfg.DownloadDir, logger)
	if errors.Is(err, intrnl.ErrBanned) {
		loc, lerr := LoadLocation(cfg.Timezone)
		if lerr != nil {
			return lerr
		}
		return intrnl.RunBanned(ctx, client, loc)
	}
	return err
}

// RunAdmin launches the moderation view.
func RunAdmin(ctx context.Context, cfg ClientConfig, logger zerolog.Logger) error {
	loc, err := LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}
	client, err := Login(ctx, cfg)
	if err != nil {
		return err
	}
	return intrnl.RunAdmin(ctx, client, loc, adminOptions(cfg, logger)...)
}

func adminOptions(cfg ClientConfig, logger zerolog.Logger) []admin.Option {
	opts := []admin.Option{admin.WithLogger(logger)}
	if cfg.AdminSingleFlight {
		opts = append(opts, admin.WithSingleFlight())
	}
	return opts
}

// RunBanned shows the signed-in user's ban countdown.
func RunBanned(ctx context.Context, cfg ClientConfig) error {
	loc, err := LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}
	client, err := Login(ctx, cfg)
	if err != nil {
		return err
	}
	return intrnl.RunBanned(ctx, client, loc)
}

package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewViperDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("ROOMCHAT_DATA_DIR", t.TempDir())

	v, err := NewViper("")
	if err != nil {
		t.Fatalf("NewViper: %v", err)
	}
	cfg, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Client.Room != "1" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Server.SessionTTL != 24*time.Hour {
		t.Fatalf("session ttl = %v", cfg.Server.SessionTTL)
	}
	if len(cfg.Server.Rooms) != 2 || cfg.Log.Service != "roomchat" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Client.AdminSingleFlight || len(adminOptions(cfg.Client, zerolog.Nop())) != 1 {
		t.Fatalf("single-flight polling should be off by default")
	}
}

func TestNewViperFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomchat.yaml")
	body := "server:\n  addr: \":9000\"\n  admins: [root]\nclient:\n  username: carol\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ROOMCHAT_CLIENT_SERVER_URL", "http://chat.example:7000")
	t.Setenv("ROOMCHAT_CLIENT_ADMIN_SINGLE_FLIGHT", "true")

	v, err := NewViper(path)
	if err != nil {
		t.Fatalf("NewViper: %v", err)
	}
	cfg, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Client.Username != "carol" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if len(cfg.Server.Admins) != 1 || cfg.Server.Admins[0] != "root" {
		t.Fatalf("admins = %v", cfg.Server.Admins)
	}
	if cfg.Client.ServerURL != "http://chat.example:7000" {
		t.Fatalf("env override ignored: %q", cfg.Client.ServerURL)
	}
	if !cfg.Client.AdminSingleFlight || len(adminOptions(cfg.Client, zerolog.Nop())) != 2 {
		t.Fatalf("single-flight env override ignored: %+v", cfg.Client)
	}
}

func TestNewViperMissingExplicitFile(t *testing.T) {
	if _, err := NewViper(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadLocation(t *testing.T) {
	if loc, err := LoadLocation(""); err != nil || loc != time.Local {
		t.Fatalf("empty name should be local, got %v %v", loc, err)
	}
	if loc, err := LoadLocation("UTC"); err != nil || loc.String() != "UTC" {
		t.Fatalf("UTC: %v %v", loc, err)
	}
	if _, err := LoadLocation("Mars/Olympus"); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}

func TestRunServerAndLogin(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := RunServer(ctx, ServerConfig{
		Addr:      "127.0.0.1:0",
		DBPath:    filepath.Join(dir, "chat.db"),
		UploadDir: filepath.Join(dir, "uploads"),
		Admins:    []string{"admin"},
		Rooms:     []string{"general"},
		Timezone:  "UTC",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("RunServer: %v", err)
	}

	client, err := Login(ctx, ClientConfig{ServerURL: handle.URL(), Username: "alice"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	state, err := client.ChatState(ctx, "1")
	if err != nil {
		t.Fatalf("ChatState: %v", err)
	}
	if state.Username != "alice" || state.RoomID != "1" {
		t.Fatalf("unexpected state %+v", state)
	}
	if _, err := client.AdminState(ctx); err == nil {
		t.Fatalf("non-admin must not get the admin handoff")
	}

	if _, err := Login(ctx, ClientConfig{ServerURL: handle.URL()}); err == nil {
		t.Fatalf("expected error without username")
	}

	cancel()
	if err := handle.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

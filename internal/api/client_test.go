package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"roomchat/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, srv
}

func TestLoginStoresSessionCookie(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("username") != "alice" {
			http.Error(w, "bad user", http.StatusBadRequest)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "SESSION", Value: "tok", Path: "/"})
	})
	mux.HandleFunc("/presence/online/chatroom/7", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("SESSION"); err != nil || c.Value != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`["bob","carol"]`))
	})
	c, _ := newTestClient(t, mux)

	if _, err := c.OnlineUsers(context.Background(), "7"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized before login, got %v", err)
	}
	if err := c.Login(context.Background(), "alice"); err != nil {
		t.Fatalf("login: %v", err)
	}
	names, err := c.OnlineUsers(context.Background(), "7")
	if err != nil {
		t.Fatalf("online users: %v", err)
	}
	if strings.Join(names, ",") != "bob,carol" {
		t.Fatalf("unexpected roster %v", names)
	}
}

func TestUploadSendsMultipartFile(t *testing.T) {
	var gotName, gotBody string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/3/upload" {
			http.NotFound(w, r)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		gotName, gotBody = header.Filename, string(data)
		_, _ = w.Write([]byte(`{"fileId":"f-1","filename":"cat.png"}`))
	}))

	res, err := c.Upload(context.Background(), "3", "/tmp/cat.png", strings.NewReader("PNGDATA"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.FileID != "f-1" || res.FileName != "cat.png" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotName != "cat.png" || gotBody != "PNGDATA" {
		t.Fatalf("server saw %q %q", gotName, gotBody)
	}
}

func TestUploadNon2xxIsStatusError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte(`{"error":"file too large"}`))
	}))

	_, err := c.Upload(context.Background(), "3", "big.bin", strings.NewReader("x"))
	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if serr.Code != http.StatusRequestEntityTooLarge || serr.Message != "file too large" {
		t.Fatalf("unexpected error %+v", serr)
	}
}

func TestModerationFeedPassesCursorAndToleratesEmptyBody(t *testing.T) {
	var since string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		since = r.URL.Query().Get("since")
		w.WriteHeader(http.StatusOK)
	}))

	items, err := c.ModerationFeed(context.Background(), "2024-01-01T10:00:00")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %v", items)
	}
	if since != "2024-01-01T10:00:00" {
		t.Fatalf("cursor not forwarded: %q", since)
	}
}

func TestBanUserPostsDuration(t *testing.T) {
	var path, duration string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		duration = r.FormValue("duration")
	}))
	if err := c.BanUser(context.Background(), model.ID("12"), "1w"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if path != "/admin/ban-user/12" || duration != "1w" {
		t.Fatalf("unexpected request %s %s", path, duration)
	}
}

func TestDownloadFileWritesToDir(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/f-9/download" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("contents"))
	}))
	dir := t.TempDir()
	dest, err := c.DownloadFile(context.Background(), "f-9", "../escape.txt", dir)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if dest != filepath.Join(dir, "escape.txt") {
		t.Fatalf("unexpected destination %s", dest)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "contents" {
		t.Fatalf("unexpected file %q %v", data, err)
	}
}

func TestWebSocketURL(t *testing.T) {
	c, err := New("https://chat.example.com/base/")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := c.WebSocketURL(); got != "wss://chat.example.com/base/chat" {
		t.Fatalf("unexpected ws url %s", got)
	}
	if got := c.FileURL("a b"); got != "https://chat.example.com/base/files/a%20b/download" {
		t.Fatalf("unexpected file url %s", got)
	}
}

package internal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"roomchat/internal/api"
	"roomchat/internal/model"
)

// TestFileUploadAndDownload verifies the basic file upload flow
func TestFileUploadAndDownload(t *testing.T) {
	env := newTestEnv(t)
	alice := env.login(t, "alice")
	ctx := context.Background()
	fileContent := []byte("Hello, this is a test file!")

	res, err := alice.Upload(ctx, "1", "notes/test.txt", bytes.NewReader(fileContent))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.FileName != "test.txt" || res.FileID.IsZero() {
		t.Fatalf("unexpected upload result %+v", res)
	}

	record, err := env.store.GetFile(ctx, res.FileID.String())
	if err != nil || record == nil {
		t.Fatalf("file not recorded: %v", err)
	}
	if record.SizeBytes != int64(len(fileContent)) || record.RoomID != 1 || record.MimeType == "" {
		t.Fatalf("unexpected record %+v", record)
	}
	if _, err := os.Stat(filepath.Join(env.server.uploadDir, record.StoragePath)); err != nil {
		t.Fatalf("file missing on disk: %v", err)
	}

	dir := t.TempDir()
	path, err := alice.DownloadFile(ctx, res.FileID, res.FileName, dir)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if !bytes.Equal(got, fileContent) {
		t.Fatalf("downloaded content mismatch: %q", got)
	}
}

func TestUploadedFileTravelsWithMessage(t *testing.T) {
	env := newTestEnv(t)
	alice := env.login(t, "alice")
	conn := env.connect(t, alice, "1")

	res, err := alice.Upload(context.Background(), "1", "cat.png", strings.NewReader("png"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	msg := model.OutboundMessage{FromName: "alice", Text: "look", RoomID: "1"}
	msg.Attach(res)
	if err := conn.Send(msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	ev := waitEvent(t, conn, isMessage("look"))
	if ev.Message.FileID != res.FileID || ev.Message.FileName != "cat.png" || !ev.Message.HasFile() {
		t.Fatalf("attachment not carried: %+v", ev.Message)
	}
}

func TestFileUploadRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	anon, _ := api.New(env.http.URL)
	if _, err := anon.Upload(ctx, "1", "a.txt", strings.NewReader("x")); !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("expected unauthorized upload, got %v", err)
	}

	alice := env.login(t, "alice")
	var serr *api.StatusError
	if _, err := alice.Upload(ctx, "42", "a.txt", strings.NewReader("x")); !errors.As(err, &serr) || serr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown room, got %v", err)
	}

	env.server.maxFileSize = 4
	if _, err := alice.Upload(ctx, "1", "big.txt", strings.NewReader("too large")); !errors.As(err, &serr) || serr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}
}

func TestFileUploadMissingField(t *testing.T) {
	env := newTestEnv(t)
	alice := env.login(t, "alice")

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("attachment", "test.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.Copy(part, strings.NewReader("data")); err != nil {
		t.Fatal(err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/files/1/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	for _, c := range alice.Jar().Cookies(mustParse(t, env.http.URL)) {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	env.server.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestDownloadUnknownFile(t *testing.T) {
	env := newTestEnv(t)
	alice := env.login(t, "alice")
	var serr *api.StatusError
	if _, err := alice.DownloadFile(context.Background(), "nope", "x", t.TempDir()); !errors.As(err, &serr) || serr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestSanitizePathComponent(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"normal", "normal"},
		{"with/slash", "with_slash"},
		{"with\\backslash", "with_backslash"},
		{"with\x00null", "withnull"},
		{"  spaces  ", "spaces"},
		{"", "unnamed"},
		{".", "unnamed"},
		{"..", "unnamed"},
	}

	for _, tt := range tests {
		result := sanitizePathComponent(tt.input)
		if result != tt.expected {
			t.Errorf("sanitizePathComponent(%q) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}

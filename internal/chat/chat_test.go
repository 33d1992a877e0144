package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	gostomp "github.com/go-stomp/stomp/v3"

	"roomchat/internal/model"
	"roomchat/internal/session"
)

func newTestSession(t *testing.T) *session.Context {
	t.Helper()
	sess, err := session.FromChatState(model.ChatState{
		UserID:     "1",
		Username:   "alice",
		RoomID:     "5",
		ReportedBy: []model.ID{"30"},
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return sess
}

type sentFrame struct {
	dest string
	body string
}

type fakeTransport struct {
	mu           sync.Mutex
	subs         map[string]chan *gostomp.Message
	sent         chan sentFrame
	done         chan struct{}
	subscribeErr error
	closed       bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		subs: make(map[string]chan *gostomp.Message),
		sent: make(chan sentFrame, 16),
		done: make(chan struct{}),
	}
}

func (f *fakeTransport) Subscribe(dest string) (*gostomp.Subscription, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan *gostomp.Message, 8)
	f.subs[dest] = ch
	return &gostomp.Subscription{C: ch}, nil
}

func (f *fakeTransport) Send(dest, contentType string, body []byte) error {
	f.sent <- sentFrame{dest: dest, body: string(body)}
	return nil
}

func (f *fakeTransport) Done() <-chan struct{} { return f.done }

func (f *fakeTransport) Err() error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeTransport) push(dest, body string) {
	f.mu.Lock()
	ch := f.subs[dest]
	f.mu.Unlock()
	ch <- &gostomp.Message{Destination: dest, Body: []byte(body)}
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []model.OutboundMessage
}

func (r *recordingSender) Send(msg model.OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingSender) sent() []model.OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.OutboundMessage(nil), r.msgs...)
}

// gatedUploader blocks every upload until release is closed.
type gatedUploader struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
	err     error
}

func newGatedUploader() *gatedUploader {
	return &gatedUploader{started: make(chan struct{}, 4), release: make(chan struct{})}
}

func (g *gatedUploader) Upload(ctx context.Context, roomID model.ID, name string, r io.Reader) (model.UploadResult, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	_, _ = io.Copy(io.Discard, r)
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return model.UploadResult{}, ctx.Err()
	}
	if g.err != nil {
		return model.UploadResult{}, g.err
	}
	return model.UploadResult{FileID: "f-" + roomID, FileName: name}, nil
}

func (g *gatedUploader) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func memFile(name, content string) StagedFile {
	return StagedFile{
		Name: name,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(content)), nil },
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out")
	}
}

func errorsIsUpload(err error) bool {
	var uerr *UploadError
	return errors.As(err, &uerr)
}

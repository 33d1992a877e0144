package stomp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

func TestWSConnReadsFrameAcrossMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for _, part := range []string{"\n", "MESS", "AGE\ndestination:/topic/presence/7\n", "\n{\"username\":\"bob\"}\x00", "\n"} {
			_ = ws.WriteMessage(websocket.TextMessage, []byte(part))
		}
		_, _, _ = ws.ReadMessage()
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	stream := NewWSConn(ws)
	defer stream.Close()
	reader := frame.NewReader(stream)

	var f *frame.Frame
	for f == nil {
		if f, err = reader.Read(); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if f.Command != frame.MESSAGE {
		t.Fatalf("unexpected command %q", f.Command)
	}
	if got := f.Header.Get(frame.Destination); got != "/topic/presence/7" {
		t.Fatalf("unexpected destination %q", got)
	}
	if string(f.Body) != `{"username":"bob"}` {
		t.Fatalf("unexpected body %q", f.Body)
	}
}

func TestWSConnCloseIsRecorded(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_, _, _ = ws.ReadMessage()
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	stream := NewWSConn(ws)
	if stream.Err() != nil {
		t.Fatalf("open stream reports %v", stream.Err())
	}
	stream.Close()
	stream.Close()
	<-stream.Done()
	if stream.Err() != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", stream.Err())
	}
	if _, err := stream.Write([]byte("x")); err == nil {
		t.Fatalf("write after close should fail")
	}
}

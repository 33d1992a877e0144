package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestIDAcceptsNumbersAndStrings(t *testing.T) {
	var msg ChatMessage
	payload := `{"id":42,"fromId":"7","from":"bob","text":"hi","time":"10:30","fileId":null}`
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.ID != "42" || msg.FromID != "7" {
		t.Fatalf("unexpected ids: %q %q", msg.ID, msg.FromID)
	}
	if msg.HasFile() {
		t.Fatalf("null file id should mean no file")
	}
}

func TestOutboundMessageCarriesNullFileFields(t *testing.T) {
	out := OutboundMessage{FromID: "1", FromName: "alice", Text: "hi", SentAt: "10:30", RoomID: "3"}
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"fileId":null`) || !strings.Contains(s, `"filename":null`) {
		t.Fatalf("expected null file fields, got %s", s)
	}
	if !strings.Contains(s, `"chatroomId":3`) {
		t.Fatalf("expected numeric room id, got %s", s)
	}

	out.Attach(UploadResult{FileID: "a1b2", FileName: "cat.png"})
	data, _ = json.Marshal(out)
	if !strings.Contains(string(data), `"fileId":"a1b2"`) {
		t.Fatalf("expected string file id, got %s", data)
	}
}

func TestModeratedMessageMissingFieldsAreAbsent(t *testing.T) {
	var items []ModeratedMessage
	if err := json.Unmarshal([]byte(`[{"id":1,"content":"x","updatedAt":"2024-01-01T00:00:00"}]`), &items); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(items) != 1 || items[0].IsBanned() || items[0].HasFile() || len(items[0].Reports) != 0 {
		t.Fatalf("unexpected decode: %+v", items)
	}
}

package model

import "strings"

const (
	JoinDestination = "/app/join"
	ChatDestination = "/app/chat"

	messageTopicPrefix  = "/topic/messages/"
	presenceTopicPrefix = "/topic/presence/"
)

func MessageTopic(roomID ID) string { return messageTopicPrefix + roomID.String() }

func PresenceTopic(roomID ID) string { return presenceTopicPrefix + roomID.String() }

// ParseTopic splits a room topic into its kind ("messages" or "presence")
// and room id.
func ParseTopic(dest string) (kind string, roomID ID, ok bool) {
	switch {
	case strings.HasPrefix(dest, messageTopicPrefix):
		kind, roomID = "messages", ID(strings.TrimPrefix(dest, messageTopicPrefix))
	case strings.HasPrefix(dest, presenceTopicPrefix):
		kind, roomID = "presence", ID(strings.TrimPrefix(dest, presenceTopicPrefix))
	default:
		return "", "", false
	}
	return kind, roomID, !roomID.IsZero()
}

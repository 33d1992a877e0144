package stomp

import (
	"bytes"
	"strconv"

	"github.com/go-stomp/stomp/v3/frame"
)

// Encode renders f in wire form, NUL terminator included.
func Encode(f *frame.Frame) []byte {
	var buf bytes.Buffer
	_ = frame.NewWriter(&buf).Write(f)
	return buf.Bytes()
}

// Message builds a MESSAGE frame for one subscription.
func Message(destination, subscription, messageID, contentType string, body []byte) *frame.Frame {
	f := frame.New(frame.MESSAGE,
		frame.Destination, destination,
		frame.Subscription, subscription,
		frame.MessageId, messageID,
		frame.ContentType, contentType,
		frame.ContentLength, strconv.Itoa(len(body)),
	)
	f.Body = body
	return f
}

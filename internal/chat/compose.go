package chat

import (
	"context"
	"strings"
	"time"

	"roomchat/internal/model"
	"roomchat/internal/session"
)

// SentAtLayout is the time shown next to a message.
const SentAtLayout = "15:04"

// Sender publishes an outgoing message.
type Sender interface {
	Send(msg model.OutboundMessage) error
}

// Draft is a message taken out of the composer. If it carries a file, the
// upload slot is already claimed for it.
type Draft struct {
	Text   string
	File   *StagedFile
	ticket *Ticket
}

// Composer builds outgoing messages. A staged file belongs to the next
// message only.
type Composer struct {
	sess     *session.Context
	uploader *Uploader
	sender   Sender
	now      func() time.Time
	staged   *StagedFile
}

func NewComposer(sess *session.Context, uploader *Uploader, sender Sender) *Composer {
	return &Composer{sess: sess, uploader: uploader, sender: sender, now: time.Now}
}

func (c *Composer) Attach(f StagedFile) { c.staged = &f }

func (c *Composer) Detach() { c.staged = nil }

func (c *Composer) Staged() (StagedFile, bool) {
	if c.staged == nil {
		return StagedFile{}, false
	}
	return *c.staged, true
}

// Prepare takes the text and any staged file as a draft. Drafts with a file
// claim the upload slot here, so a second one is refused while the first is
// in flight. The staged file is kept when the draft is refused.
func (c *Composer) Prepare(text string) (*Draft, error) {
	text = strings.TrimSpace(text)
	if text == "" && c.staged == nil {
		return nil, ErrEmptyMessage
	}
	d := &Draft{Text: text}
	if c.staged != nil {
		t, err := c.uploader.Begin()
		if err != nil {
			return nil, err
		}
		d.File, d.ticket = c.staged, t
		c.staged = nil
	}
	return d, nil
}

// Submit uploads the draft's file, if any, then publishes the message. A
// failed upload aborts the send. A draft can be submitted once.
func (c *Composer) Submit(ctx context.Context, d *Draft) error {
	out := model.OutboundMessage{
		FromID:   c.sess.UserID,
		FromName: c.sess.UserName,
		Text:     d.Text,
		SentAt:   c.now().Format(SentAtLayout),
		RoomID:   c.sess.RoomID,
	}
	if d.File != nil {
		f, t := *d.File, d.ticket
		d.File, d.ticket = nil, nil
		res, err := t.upload(ctx, f)
		if err != nil {
			return err
		}
		out.Attach(res)
	}
	return c.sender.Send(out)
}

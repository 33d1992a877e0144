package chat

import (
	"regexp"

	"roomchat/internal/model"
	"roomchat/internal/session"
)

var imageFilePattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif)$`)

// IsImageFile reports whether name gets an inline preview.
func IsImageFile(name string) bool {
	return imageFilePattern.MatchString(name)
}

type AttachmentKind int

const (
	AttachmentNone AttachmentKind = iota
	AttachmentImage
	AttachmentDownload
)

type Attachment struct {
	Kind     AttachmentKind
	FileID   model.ID
	FileName string
	URL      string
}

// Row is a rendered chat line.
type Row struct {
	Message    model.ChatMessage
	IsSelf     bool
	Attachment Attachment
	CanReport  bool
}

// Stream is the message list of a chat view, kept in arrival order. It is
// only touched from the dispatch loop.
type Stream struct {
	sess    *session.Context
	fileURL func(model.ID) string
	rows    []Row
}

func NewStream(sess *session.Context, fileURL func(model.ID) string) *Stream {
	return &Stream{sess: sess, fileURL: fileURL}
}

// Append renders msg at the end of the list. There is no deduplication.
func (s *Stream) Append(msg model.ChatMessage) Row {
	row := Row{
		Message: msg,
		IsSelf:  s.sess.IsSelfID(msg.FromID),
	}
	if msg.HasFile() && msg.FileName != "" {
		row.Attachment = Attachment{
			Kind:     AttachmentDownload,
			FileID:   msg.FileID,
			FileName: msg.FileName,
		}
		if IsImageFile(msg.FileName) {
			row.Attachment.Kind = AttachmentImage
		}
		if s.fileURL != nil {
			row.Attachment.URL = s.fileURL(msg.FileID)
		}
	}
	row.CanReport = !row.IsSelf && !msg.ID.IsZero() && !s.sess.HasReported(msg.ID)
	s.rows = append(s.rows, row)
	return row
}

// MarkReported records a report by the local user and hides the affordance
// on every row for that message.
func (s *Stream) MarkReported(id model.ID) {
	s.sess.MarkReported(id)
	for i := range s.rows {
		if s.rows[i].Message.ID == id {
			s.rows[i].CanReport = false
		}
	}
}

// Find returns the row for a message id.
func (s *Stream) Find(id model.ID) (Row, bool) {
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].Message.ID == id {
			return s.rows[i], true
		}
	}
	return Row{}, false
}

func (s *Stream) Rows() []Row {
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	return out
}

func (s *Stream) Len() int { return len(s.rows) }

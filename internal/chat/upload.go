package chat

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"roomchat/internal/model"
)

// FileUploader posts a file to a room's upload endpoint.
type FileUploader interface {
	Upload(ctx context.Context, roomID model.ID, filename string, r io.Reader) (model.UploadResult, error)
}

// StagedFile is a file picked for the next outgoing message.
type StagedFile struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// LocalFile stages a file from disk. It is opened only when uploaded.
func LocalFile(path string) StagedFile {
	return StagedFile{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// Uploader allows one upload at a time for a room. While one is in flight
// the send control is disabled and the busy indicator is shown.
type Uploader struct {
	files  FileUploader
	roomID model.ID

	mu       sync.Mutex
	inFlight bool
}

func NewUploader(files FileUploader, roomID model.ID) *Uploader {
	return &Uploader{files: files, roomID: roomID}
}

func (u *Uploader) InFlight() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.inFlight
}

func (u *Uploader) SendEnabled() bool { return !u.InFlight() }

// Begin claims the single upload slot. It fails immediately, without any
// request, if another upload has not resolved yet.
func (u *Uploader) Begin() (*Ticket, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.inFlight {
		return nil, ErrUploadInFlight
	}
	u.inFlight = true
	return &Ticket{u: u}, nil
}

func (u *Uploader) finish() {
	u.mu.Lock()
	u.inFlight = false
	u.mu.Unlock()
}

// Ticket is a claimed upload slot. It is released exactly once, by Run or
// Release, whichever comes first.
type Ticket struct {
	u    *Uploader
	once sync.Once
	used bool
}

var errTicketReleased = errors.New("upload slot already released")

// Run uploads r and releases the slot on every path out.
func (t *Ticket) Run(ctx context.Context, filename string, r io.Reader) (model.UploadResult, error) {
	if t.used {
		return model.UploadResult{}, &UploadError{FileName: filename, Err: errTicketReleased}
	}
	t.used = true
	defer t.Release()

	res, err := t.u.files.Upload(ctx, t.u.roomID, filename, r)
	if err != nil {
		return model.UploadResult{}, &UploadError{FileName: filename, Err: err}
	}
	return res, nil
}

// Release frees the slot without uploading.
func (t *Ticket) Release() {
	t.once.Do(t.u.finish)
	t.used = true
}

func (t *Ticket) upload(ctx context.Context, f StagedFile) (model.UploadResult, error) {
	rc, err := f.Open()
	if err != nil {
		t.Release()
		return model.UploadResult{}, &UploadError{FileName: f.Name, Err: err}
	}
	defer rc.Close()
	return t.Run(ctx, f.Name, rc)
}

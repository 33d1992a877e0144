package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"roomchat/internal/model"
)

var (
	httpTimeout   = 5 * time.Second
	uploadTimeout = 2 * time.Minute
)

// ErrUnauthorized is returned when the session cookie is missing or rejected.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Is matches ErrUnauthorized for 401 and 403 answers.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && (e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden)
}

// Client talks to the chat server's HTTP endpoints. Session identity lives in
// the cookie jar, which the websocket dialer shares.
type Client struct {
	base *url.URL
	http *http.Client
	jar  http.CookieJar
}

func New(baseURL string) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", base.Scheme)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		base: base,
		http: &http.Client{Jar: jar},
		jar:  jar,
	}, nil
}

func (c *Client) Jar() http.CookieJar { return c.jar }

func (c *Client) BaseURL() string { return c.base.String() }

// WebSocketURL is the STOMP endpoint on the same origin.
func (c *Client) WebSocketURL() string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/chat"
	return u.String()
}

func (c *Client) endpoint(segments ...string) string {
	u := *c.base
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	prefix := strings.TrimRight(u.EscapedPath(), "/")
	u.RawPath = prefix + "/" + strings.Join(escaped, "/")
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(segments, "/")
	return u.String()
}

// FileURL is where a file can be fetched by id.
func (c *Client) FileURL(fileID model.ID) string {
	return c.endpoint("files", fileID.String(), "download")
}

// Login starts a session for username. The server answers with a cookie.
func (c *Client) Login(ctx context.Context, username string) error {
	form := url.Values{"username": {username}}
	return c.doForm(ctx, c.endpoint("login"), form, nil)
}

func (c *Client) ChatState(ctx context.Context, roomID model.ID) (model.ChatState, error) {
	var st model.ChatState
	err := c.doJSONRequest(ctx, http.MethodGet, c.endpoint("api", "state", "chatroom", roomID.String()), nil, &st)
	return st, err
}

func (c *Client) AdminState(ctx context.Context) (model.AdminState, error) {
	var st model.AdminState
	err := c.doJSONRequest(ctx, http.MethodGet, c.endpoint("api", "state", "admin"), nil, &st)
	return st, err
}

func (c *Client) BanState(ctx context.Context) (model.BanState, error) {
	var st model.BanState
	err := c.doJSONRequest(ctx, http.MethodGet, c.endpoint("api", "state", "banned"), nil, &st)
	return st, err
}

// OnlineUsers lists who else is in the room.
func (c *Client) OnlineUsers(ctx context.Context, roomID model.ID) ([]string, error) {
	var names []string
	err := c.doJSONRequest(ctx, http.MethodGet, c.endpoint("presence", "online", "chatroom", roomID.String()), nil, &names)
	return names, err
}

// Upload streams r as the multipart field "file" to the room's upload endpoint.
func (c *Client) Upload(ctx context.Context, roomID model.ID, filename string, r io.Reader) (model.UploadResult, error) {
	var res model.UploadResult
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(filename))
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("files", roomID.String(), "upload"), pr)
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return res, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, fmt.Errorf("decode upload response: %w", err)
	}
	if res.FileID.IsZero() {
		return res, errors.New("upload response missing file id")
	}
	return res, nil
}

// DownloadFile saves the file into dir and returns the written path.
func (c *Client) DownloadFile(ctx context.Context, fileID model.ID, name, dir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FileURL(fileID), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}

	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = fileID.String()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(dir, name)
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", err
	}
	return dest, f.Close()
}

// ReportMessage flags a message for the moderators.
func (c *Client) ReportMessage(ctx context.Context, messageID model.ID, reason string) error {
	form := url.Values{"reason": {reason}}
	return c.doForm(ctx, c.endpoint("reports", "message", messageID.String()), form, nil)
}

// ModerationFeed returns reported messages changed after since. An empty
// result means nothing changed.
func (c *Client) ModerationFeed(ctx context.Context, since string) ([]model.ModeratedMessage, error) {
	endpoint := c.endpoint("admin", "panel", "reports")
	if since != "" {
		endpoint += "?" + url.Values{"since": {since}}.Encode()
	}
	var items []model.ModeratedMessage
	err := c.doJSONRequest(ctx, http.MethodGet, endpoint, nil, &items)
	return items, err
}

func (c *Client) DismissReports(ctx context.Context, messageID model.ID) error {
	return c.doForm(ctx, c.endpoint("admin", "dismiss-message-reports", messageID.String()), nil, nil)
}

// BanUser bans the sender of messageID for duration ("24h", "1w" or "forever").
func (c *Client) BanUser(ctx context.Context, messageID model.ID, duration string) error {
	form := url.Values{"duration": {duration}}
	return c.doForm(ctx, c.endpoint("admin", "ban-user", messageID.String()), form, nil)
}

func (c *Client) BannedUsers(ctx context.Context) ([]model.BannedUser, error) {
	var users []model.BannedUser
	err := c.doJSONRequest(ctx, http.MethodGet, c.endpoint("admin", "panel", "banned-users"), nil, &users)
	return users, err
}

func (c *Client) doForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) doJSONRequest(ctx context.Context, method, endpoint string, payload interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	// chunked answers have no length, so read everything and decode if present
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Message: readResponseError(resp.Body)}
	}
	return nil
}

func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
	sqlite "modernc.org/sqlite"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
)

// TimeLayout is how timestamps are stored. Values are always UTC so string
// order matches time order.
const TimeLayout = "2006-01-02T15:04:05.000000"

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

const (
	ReportPending     = "PENDING"
	ReportDismissed   = "DISMISSED"
	ReportActionTaken = "ACTION_TAKEN"
)

// Store wraps the SQLite handle and exposes helper methods used by the server.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// User represents a row in the users table.
type User struct {
	ID           int64
	Username     string
	Role         string
	BannedUntil  *time.Time
	BanPermanent bool
	CreatedAt    time.Time
}

// BannedAt reports whether the user is banned at t.
func (u *User) BannedAt(t time.Time) bool {
	if u.BanPermanent {
		return true
	}
	return u.BannedUntil != nil && u.BannedUntil.After(t)
}

type Room struct {
	ID   int64
	Name string
}

// FileRecord describes an uploaded attachment.
type FileRecord struct {
	ID          string
	RoomID      int64
	Filename    string
	MimeType    string
	SizeBytes   int64
	SHA256      string
	StoragePath string
	UploadedBy  int64
	CreatedAt   time.Time
}

type Message struct {
	ID       int64
	RoomID   int64
	SenderID int64
	Content  string
	FileID   string
	SentAt   time.Time
}

// ReportEntry is one active report on a message.
type ReportEntry struct {
	ReporterUsername string
	Reason           string
	UpdatedAt        time.Time
}

// ReportedMessage is a message with pending reports, as shown to moderators.
type ReportedMessage struct {
	MessageID      int64
	Content        string
	SenderUsername string
	SenderBan      *User
	File           *FileRecord
	Reports        []ReportEntry
	UpdatedAt      time.Time
}

// ErrUserExists is returned when attempting to insert a duplicate username.
var ErrUserExists = errors.New("user already exists")

// ErrAlreadyReported is returned when a user reports the same message twice.
var ErrAlreadyReported = errors.New("message already reported by user")

// NewStore initializes the SQLite database at the provided path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "roomchat.db"
	}
	dsn := buildDSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=foreign_keys=ON", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL DEFAULT 'USER',
			banned_until TEXT,
			ban_permanent INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rooms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS files (
			id TEXT PRIMARY KEY,
			room_id INTEGER NOT NULL,
			filename TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			sha256 TEXT NOT NULL,
			storage_path TEXT NOT NULL,
			uploaded_by INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE CASCADE,
			FOREIGN KEY(uploaded_by) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id INTEGER NOT NULL,
			sender_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			file_id TEXT,
			sent_at TEXT NOT NULL,
			FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE CASCADE,
			FOREIGN KEY(sender_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(file_id) REFERENCES files(id) ON DELETE SET NULL
		);`,
		`CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id INTEGER NOT NULL,
			reporter_id INTEGER NOT NULL,
			reason TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(message_id, reporter_id),
			FOREIGN KEY(message_id) REFERENCES messages(id) ON DELETE CASCADE,
			FOREIGN KEY(reporter_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS reports_updated_at ON reports(updated_at);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.UTC)
}

// EnsureUser returns the user with username, creating it with role on first
// sight. An existing user's role is updated when it differs.
func (s *Store) EnsureUser(ctx context.Context, username, role string) (*User, error) {
	if role == "" {
		role = RoleUser
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO users(username, role, created_at) VALUES(?, ?, ?)`,
		username, role, formatTime(s.now())); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET role=? WHERE username=? AND role<>?`, role, username, role); err != nil {
		return nil, err
	}
	return s.GetUserByUsername(ctx, username)
}

const userColumns = `id, username, role, banned_until, ban_permanent, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		user      User
		until     sql.NullString
		permanent int
		created   string
	)
	if err := row.Scan(&user.ID, &user.Username, &user.Role, &until, &permanent, &created); err != nil {
		return nil, err
	}
	user.BanPermanent = permanent != 0
	if until.Valid {
		t, err := parseTime(until.String)
		if err != nil {
			return nil, fmt.Errorf("user %d banned_until: %w", user.ID, err)
		}
		user.BannedUntil = &t
	}
	if t, err := parseTime(created); err == nil {
		user.CreatedAt = t
	}
	return &user, nil
}

// GetUserByUsername fetches a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID fetches a user by primary key.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// EnsureRoom returns the room called name, creating it if needed.
func (s *Store) EnsureRoom(ctx context.Context, name string) (*Room, error) {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO rooms(name) VALUES(?)`, name); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, name FROM rooms WHERE name = ?`, name)
	var room Room
	if err := row.Scan(&room.ID, &room.Name); err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoom fetches a room by id.
func (s *Store) GetRoom(ctx context.Context, id int64) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name FROM rooms WHERE id = ?`, id)
	var room Room
	if err := row.Scan(&room.ID, &room.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// SaveFile records an uploaded file.
func (s *Store) SaveFile(ctx context.Context, f FileRecord) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files(id, room_id, filename, mime_type, size_bytes, sha256, storage_path, uploaded_by, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.RoomID, f.Filename, f.MimeType, f.SizeBytes, f.SHA256, f.StoragePath, f.UploadedBy, formatTime(f.CreatedAt))
	return err
}

// GetFile fetches file metadata by id.
func (s *Store) GetFile(ctx context.Context, id string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, room_id, filename, mime_type, size_bytes, sha256, storage_path, uploaded_by, created_at
		FROM files WHERE id = ?`, id)
	var (
		f       FileRecord
		created string
	)
	if err := row.Scan(&f.ID, &f.RoomID, &f.Filename, &f.MimeType, &f.SizeBytes, &f.SHA256, &f.StoragePath, &f.UploadedBy, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if t, err := parseTime(created); err == nil {
		f.CreatedAt = t
	}
	return &f, nil
}

// CreateMessage stores a chat message and returns its id.
func (s *Store) CreateMessage(ctx context.Context, msg Message) (int64, error) {
	if msg.SentAt.IsZero() {
		msg.SentAt = s.now()
	}
	var fileID any
	if msg.FileID != "" {
		fileID = msg.FileID
	}
	result, err := s.db.ExecContext(ctx, `INSERT INTO messages(room_id, sender_id, content, file_id, sent_at) VALUES(?, ?, ?, ?, ?)`,
		msg.RoomID, msg.SenderID, msg.Content, fileID, formatTime(msg.SentAt))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetMessage fetches a message by id.
func (s *Store) GetMessage(ctx context.Context, id int64) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, room_id, sender_id, content, file_id, sent_at FROM messages WHERE id = ?`, id)
	var (
		msg    Message
		fileID sql.NullString
		sent   string
	)
	if err := row.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &fileID, &sent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	msg.FileID = fileID.String
	if t, err := parseTime(sent); err == nil {
		msg.SentAt = t
	}
	return &msg, nil
}

// CreateReport files a pending report. ErrAlreadyReported is returned when the
// reporter already reported the message.
func (s *Store) CreateReport(ctx context.Context, messageID, reporterID int64, reason string) error {
	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx, `INSERT INTO reports(message_id, reporter_id, reason, status, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?)`,
		messageID, reporterID, reason, ReportPending, now, now)
	if err != nil {
		if isConstraintError(err) {
			return ErrAlreadyReported
		}
		return err
	}
	return nil
}

// ReportedMessageIDs lists the messages in a room the user has reported.
func (s *Store) ReportedMessageIDs(ctx context.Context, reporterID, roomID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.message_id
		FROM reports r
		JOIN messages m ON m.id = r.message_id
		WHERE r.reporter_id = ? AND m.room_id = ?
		ORDER BY r.message_id ASC
	`, reporterID, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReportsChangedSince reports whether any pending report was filed or
// touched after since. Resolved rows are left out: the feed cursor only ever
// advances to pending timestamps, so they would read as changed forever.
func (s *Store) ReportsChangedSince(ctx context.Context, since time.Time) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM reports WHERE status = ? AND updated_at > ?`, ReportPending, formatTime(since))
	var count int
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// PendingReports returns every message with at least one pending report,
// oldest first, with its pending reports attached.
func (s *Store) PendingReports(ctx context.Context) ([]ReportedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.content, m.file_id,
			u.id, u.username, u.role, u.banned_until, u.ban_permanent, u.created_at,
			rep.username, r.reason, r.updated_at
		FROM reports r
		JOIN messages m ON m.id = r.message_id
		JOIN users u ON u.id = m.sender_id
		JOIN users rep ON rep.id = r.reporter_id
		WHERE r.status = ?
		ORDER BY m.id ASC, r.created_at ASC, r.id ASC
	`, ReportPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out     []ReportedMessage
		fileIDs = map[int]string{}
	)
	for rows.Next() {
		var (
			msgID     int64
			content   string
			fileID    sql.NullString
			sender    User
			until     sql.NullString
			permanent int
			created   string
			entry     ReportEntry
			updated   string
		)
		if err := rows.Scan(&msgID, &content, &fileID,
			&sender.ID, &sender.Username, &sender.Role, &until, &permanent, &created,
			&entry.ReporterUsername, &entry.Reason, &updated); err != nil {
			return nil, err
		}
		if t, err := parseTime(updated); err == nil {
			entry.UpdatedAt = t
		}
		if n := len(out); n == 0 || out[n-1].MessageID != msgID {
			sender.BanPermanent = permanent != 0
			if until.Valid {
				if t, err := parseTime(until.String); err == nil {
					sender.BannedUntil = &t
				}
			}
			senderCopy := sender
			out = append(out, ReportedMessage{
				MessageID:      msgID,
				Content:        content,
				SenderUsername: sender.Username,
				SenderBan:      &senderCopy,
			})
			if fileID.Valid {
				fileIDs[len(out)-1] = fileID.String
			}
		}
		last := &out[len(out)-1]
		last.Reports = append(last.Reports, entry)
		if entry.UpdatedAt.After(last.UpdatedAt) {
			last.UpdatedAt = entry.UpdatedAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i, id := range fileIDs {
		f, err := s.GetFile(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i].File = f
	}
	return out, nil
}

// DismissReports marks every pending report on a message as dismissed.
func (s *Store) DismissReports(ctx context.Context, messageID int64) (int64, error) {
	return s.resolveReports(ctx, messageID, ReportDismissed)
}

func (s *Store) resolveReports(ctx context.Context, messageID int64, status string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE reports SET status=?, updated_at=? WHERE message_id=? AND status=?`,
		status, formatTime(s.now()), messageID, ReportPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// BanSender bans the author of a message until the given time, or forever
// when until is nil. An existing ban is only ever extended. Pending reports
// on the message are marked as acted on.
func (s *Store) BanSender(ctx context.Context, messageID int64, until *time.Time) (*User, error) {
	msg, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, sql.ErrNoRows
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	user, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, msg.SenderID))
	if err != nil {
		return nil, err
	}
	switch {
	case user.BanPermanent:
	case until == nil:
		if _, err = tx.ExecContext(ctx, `UPDATE users SET ban_permanent=1, banned_until=NULL WHERE id=?`, user.ID); err != nil {
			return nil, err
		}
	case user.BannedUntil == nil || user.BannedUntil.Before(*until):
		if _, err = tx.ExecContext(ctx, `UPDATE users SET banned_until=? WHERE id=?`, formatTime(*until), user.ID); err != nil {
			return nil, err
		}
	}
	if _, err = tx.ExecContext(ctx, `UPDATE reports SET status=?, updated_at=? WHERE message_id=? AND status=?`,
		ReportActionTaken, formatTime(s.now()), messageID, ReportPending); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, user.ID)
}

// BannedUsers lists users whose ban is still in force at now.
func (s *Store) BannedUsers(ctx context.Context, now time.Time) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE ban_permanent = 1 OR (banned_until IS NOT NULL AND banned_until > ?)
		ORDER BY username ASC
	`, formatTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ClearExpiredBans drops ban expiries that have passed.
func (s *Store) ClearExpiredBans(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET banned_until=NULL WHERE ban_permanent = 0 AND banned_until IS NOT NULL AND banned_until <= ?`, formatTime(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqliteConstraintCode
	}
	return false
}

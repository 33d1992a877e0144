package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"roomchat/internal/model"
	"roomchat/internal/storage"
)

// HandleFileUpload stores the multipart field "file" for a room and answers
// with its id. The chat message referencing it is sent separately.
func (s *Server) HandleFileUpload(w http.ResponseWriter, r *http.Request) {
	authCtx, user, err := s.currentUser(r)
	if err != nil {
		writeError(w, authStatus(err), err)
		return
	}
	if user.BannedAt(s.now()) {
		writeError(w, http.StatusForbidden, errBanned)
		return
	}
	roomID, ok := int64Param(w, r, "roomID")
	if !ok {
		return
	}
	room, err := s.store.GetRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, errors.New("chatroom not found"))
		return
	}

	// Parse multipart form with size limit
	r.Body = http.MaxBytesReader(w, r.Body, s.maxFileSize+1024*1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("file too large"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("no file provided"))
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." || filename == ".." || filename == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, errors.New("invalid filename"))
		return
	}
	if header.Size > s.maxFileSize {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("file too large"))
		return
	}

	fileID := uuid.NewString()
	roomDir := filepath.Join(s.uploadDir, strconv.FormatInt(roomID, 10))
	relPath := filepath.Join(strconv.FormatInt(roomID, 10), fileID+"-"+sanitizePathComponent(filename))
	storagePath := filepath.Join(s.uploadDir, relPath)

	if err := os.MkdirAll(roomDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to create upload directory: %w", err))
		return
	}
	destFile, err := os.Create(storagePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to create file: %w", err))
		return
	}
	defer destFile.Close()

	// Copy file content while computing hash
	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(destFile, hasher), file)
	if err != nil {
		os.Remove(storagePath)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to save file: %w", err))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		mimeType = byExt
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	record := storage.FileRecord{
		ID:          fileID,
		RoomID:      roomID,
		Filename:    filename,
		MimeType:    mimeType,
		SizeBytes:   written,
		SHA256:      hex.EncodeToString(hasher.Sum(nil)),
		StoragePath: relPath,
		UploadedBy:  authCtx.UserID,
	}
	if err := s.store.SaveFile(r.Context(), record); err != nil {
		os.Remove(storagePath)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.IncUpload()
	s.logger.Info().Str("file_id", fileID).Int64("room_id", roomID).Int64("size", written).Msg("file uploaded")
	writeJSON(w, http.StatusOK, model.UploadResult{FileID: model.ID(fileID), FileName: filename})
}

// HandleFileDownload serves a stored file as an attachment.
func (s *Server) HandleFileDownload(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticateRequest(r); err != nil {
		writeError(w, authStatus(err), err)
		return
	}
	fileInfo, err := s.store.GetFile(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if fileInfo == nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	base, err := filepath.Abs(s.uploadDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	absPath := filepath.Join(base, fileInfo.StoragePath)
	if !strings.HasPrefix(absPath, base+string(filepath.Separator)) {
		http.Error(w, "invalid file path", http.StatusForbidden)
		return
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found on disk", http.StatusNotFound)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	defer file.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileInfo.Filename))
	w.Header().Set("Content-Type", fileInfo.MimeType)
	http.ServeContent(w, r, fileInfo.Filename, fileInfo.CreatedAt, file)
}

// sanitizePathComponent removes dangerous characters from path components
func sanitizePathComponent(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." {
		return "unnamed"
	}
	return s
}

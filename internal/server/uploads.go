package server

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"path"

	"github.com/maauso/clearmedia-api/internal/storage"
)

// PresignUpload handles POST /uploads/presign requests.
func (h *Handlers) PresignUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req PresignRequest
	if !h.decode(w, r, &req) {
		return
	}

	key := storage.NewKey(uploadPrefix(userID), req.Filename)
	url, err := h.deps.Objects.Presign(r.Context(), key, req.ContentType, h.presignTTL)
	if err != nil {
		if errors.Is(err, storage.ErrPresignUnsupported) {
			writeError(w, http.StatusNotImplemented, "direct uploads are not available, use POST /uploads", "presign_unsupported")
			return
		}
		h.logger.Error("failed to presign upload",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create upload URL", "presign_failed")
		return
	}

	writeJSON(w, http.StatusOK, PresignResponse{
		UploadURL: url,
		InputRef:  key,
		PublicURL: h.deps.Objects.PublicURL(key),
		ExpiresIn: int(h.presignTTL.Seconds()),
	})
}

// Upload handles POST /uploads requests carrying a multipart "file" field.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if r.ContentLength > h.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file is too large", "upload_too_large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file is too large", "upload_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required", "missing_file")
		return
	}
	defer func() { _ = file.Close() }()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(header.Filename))
	}

	key := storage.NewKey(uploadPrefix(userID), header.Filename)
	counter := &countingReader{r: file}
	url, err := h.deps.Objects.Put(r.Context(), key, counter, contentType)
	if err != nil {
		h.logger.Error("failed to store upload",
			slog.String("user_id", userID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store file", "upload_failed")
		return
	}

	h.logger.Info("upload stored",
		slog.String("user_id", userID),
		slog.String("key", key),
		slog.Int64("bytes", counter.n),
	)
	writeJSON(w, http.StatusCreated, UploadResponse{
		InputRef:  key,
		PublicURL: url,
		Size:      counter.n,
	})
}

// DownloadFile handles GET /files/{key...} for stores the API serves itself.
func (h *Handlers) DownloadFile(w http.ResponseWriter, r *http.Request) {
	reader, ok := h.deps.Objects.(storage.ObjectReader)
	if !ok {
		writeError(w, http.StatusNotFound, "file not found", "file_not_found")
		return
	}

	key := r.PathValue("key")
	rc, err := reader.Open(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidKey):
			writeError(w, http.StatusBadRequest, "invalid file key", "invalid_key")
		case errors.Is(err, fs.ErrNotExist):
			writeError(w, http.StatusNotFound, "file not found", "file_not_found")
		default:
			h.logger.Error("failed to open file",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to read file", "download_failed")
		}
		return
	}
	defer func() { _ = rc.Close() }()

	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("file download interrupted",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func uploadPrefix(userID string) string {
	return path.Join("uploads", storage.SafeSegment(userID))
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

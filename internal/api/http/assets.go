// internal/api/http/assets.go
package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/examportal/internal/storage"
)

// POST /tests/{testID}/assets (multipart "file") stores a question image
// under tests/{testID}/ and returns its key for Question.imageKey.
func UploadAssetHandler(bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "file required")
			return
		}
		defer f.Close()

		mt, err := mimetype.DetectReader(f)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "unreadable file")
			return
		}
		if !strings.HasPrefix(mt.String(), "image/") {
			writeMessage(w, http.StatusUnsupportedMediaType, "question assets must be images, got "+mt.String())
			return
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			writeError(w, r, err)
			return
		}

		name := path.Base(strings.ReplaceAll(hdr.Filename, "\\", "/"))
		if name == "." || name == "/" || name == ".." {
			writeMessage(w, http.StatusBadRequest, "bad filename")
			return
		}
		key, err := bs.Put("tests/"+testID+"/"+name, f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		url, err := bs.SignedURL(key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"key": key, "url": url})
	}
}

// MountAssets: GET /* returns the blob at whatever follows the mount point.
func MountAssets(r chi.Router, bs storage.BlobStore) {
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		rc, err := bs.Get(key)
		if err != nil {
			if errors.Is(err, storage.ErrBadKey) || errors.Is(err, os.ErrNotExist) {
				writeMessage(w, http.StatusNotFound, "not found")
				return
			}
			writeError(w, r, err)
			return
		}
		defer rc.Close()
		ct := mime.TypeByExtension(path.Ext(key))
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Cache-Control", "private, max-age=3600")
		_, _ = io.Copy(w, rc)
	})
}

package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (a *API) handleBackupStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.backups.Stats(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleBackupCreate(w http.ResponseWriter, r *http.Request) {
	file, err := a.backups.Create(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

func (a *API) handleBackupList(w http.ResponseWriter, r *http.Request) {
	files, err := a.backups.List()
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (a *API) handleBackupDownload(w http.ResponseWriter, r *http.Request) {
	f, info, err := a.backups.Open(chi.URLParam(r, "name"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))
	http.ServeContent(w, r, info.Name, info.CreatedAt, f)
}

// handleBackupRestore accepts either a multipart upload in the "file" field,
// a raw JSON snapshot body, or ?filename= naming a stored backup.
func (a *API) handleBackupRestore(w http.ResponseWriter, r *http.Request) {
	if name := strings.TrimSpace(r.URL.Query().Get("filename")); name != "" {
		stats, err := a.backups.Restore(r.Context(), name)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeRestored(w, stats)
		return
	}

	var body io.Reader = r.Body
	if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid upload: %w", err))
			return
		}
		upload, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("backup file is required in the \"file\" field"))
			return
		}
		defer upload.Close()
		body = upload
	}

	stats, err := a.backups.RestoreFrom(r.Context(), body)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeRestored(w, stats)
}

func writeRestored(w http.ResponseWriter, stats any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "restore completed, sign in again",
		"restored": stats,
	})
}

func (a *API) handleBackupDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.backups.Delete(chi.URLParam(r, "name")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

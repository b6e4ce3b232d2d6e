package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"postty/pkg/zip"
)

// RequestArchive bundles every stored asset of one generation request into a
// zip download.
func (a *App) RequestArchive(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "request_id")
	if requestID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "request_id required")
		return
	}
	if a.Store == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "asset storage is not configured")
		return
	}

	dir, err := a.Store.FilePath("requests/" + requestID)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid request_id")
		return
	}

	files, err := os.ReadDir(dir)
	if err != nil || len(files) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no assets for this request")
		return
	}

	var entries []zip.Entry
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			a.Logger.Warn().Str("file", file.Name()).Err(err).Msg("handlers: skipping unreadable asset")
			continue
		}
		entries = append(entries, zip.Entry{Name: file.Name(), Data: data})
	}

	archive, err := zip.Archive(entries)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "no assets for this request")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", requestID+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

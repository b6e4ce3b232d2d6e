// Package zip builds download archives for a request's generated assets.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
)

// Entry is one file inside an archive.
type Entry struct {
	Name string
	Data []byte
}

// Archive packs the entries into an in-memory zip. Entry names are flattened
// to their base name so the archive never encodes storage paths.
func Archive(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("zip: no entries to archive")
	}
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		w, err := zw.Create(path.Base(entry.Name))
		if err != nil {
			return nil, fmt.Errorf("zip: add %s: %w", entry.Name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

package binance

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"klinevault/internal/domain"
)

// Extractor unpacks downloaded archives. Every entry is written under a
// fresh uuid prefix so entries with the same name from different archives
// never overwrite each other.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor { return &Extractor{} }

// Extract writes every file entry of archive into dir and removes the
// archive. On any failure the partially extracted files are removed and no
// entries are returned.
func (e *Extractor) Extract(archive domain.DownloadedArchive, dir string) ([]domain.ExtractedEntry, error) {
	defer os.Remove(archive.Path)

	zr, err := zip.OpenReader(archive.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s (%d bytes): %w", archive.Request.FileName(), archive.Size, err)
	}
	defer zr.Close()

	var entries []domain.ExtractedEntry
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		// Only the base name is kept; archive-internal directories are
		// flattened so entries cannot escape dir.
		name := path.Base(zf.Name)
		dst := filepath.Join(dir, uuid.NewString()+"_"+name)
		if err := extractFile(zf, dst); err != nil {
			for _, en := range entries {
				os.Remove(en.Path)
			}
			return nil, fmt.Errorf("extracting %s from %s: %w", zf.Name, archive.Request.FileName(), err)
		}
		entries = append(entries, domain.ExtractedEntry{
			Path:    dst,
			Name:    name,
			Archive: archive.Request.FileName(),
			Kind:    archive.Request.Kind,
		})
	}
	return entries, nil
}

func extractFile(zf *zip.File, dst string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

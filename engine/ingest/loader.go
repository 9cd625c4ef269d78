package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/VerityAI/verity-mvp/engine/domain"
)

// FileLoader resolves document IDs to files under a data root. IDs are
// slash-separated paths relative to the root; the first path segment names
// the domain and the second the category, mirroring how the bulk loader
// lays documents out on disk.
type FileLoader struct {
	Root string
}

// Load reads one document by its relative path.
func (l *FileLoader) Load(_ context.Context, id string) (domain.SourceDocument, error) {
	clean := filepath.Clean(filepath.FromSlash(id))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return domain.SourceDocument{}, fmt.Errorf("loader: id escapes data root: %q", id)
	}

	data, err := os.ReadFile(filepath.Join(l.Root, clean))
	if err != nil {
		return domain.SourceDocument{}, fmt.Errorf("loader: read %s: %w", id, err)
	}

	doc := domain.SourceDocument{ID: id, Text: string(data)}
	doc.Domain, doc.Category = tagsFromPath(id)
	return doc, nil
}

// Walk yields every ingestable file under the root as a document ID.
// Hidden files and non-text formats are skipped.
func (l *FileLoader) Walk() ([]string, error) {
	var ids []string
	err := filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != l.Root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !ingestableExt(path) {
			return nil
		}
		rel, err := filepath.Rel(l.Root, path)
		if err != nil {
			return err
		}
		ids = append(ids, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loader: walk %s: %w", l.Root, err)
	}
	return ids, nil
}

func ingestableExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".csv", ".json":
		return true
	default:
		return false
	}
}

// tagsFromPath derives (domain, category) from a document's relative path.
// Unrecognised leading segments leave the domain unknown, which routes the
// document through head-text classification instead.
func tagsFromPath(id string) (domain.Domain, string) {
	parts := strings.Split(filepath.ToSlash(id), "/")
	if len(parts) < 2 {
		return domain.DomainUnknown, ""
	}
	d := domain.Domain(parts[0])
	if !domain.ValidDomains[d] {
		return domain.DomainUnknown, ""
	}
	category := ""
	if len(parts) > 2 {
		category = parts[1]
	}
	return d, category
}

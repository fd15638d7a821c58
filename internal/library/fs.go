package library

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	// Register decoders for the supported photo formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/hyperjump/kasane/internal/models"
	"github.com/hyperjump/kasane/internal/photoid"
	"github.com/hyperjump/kasane/pkg/utils"
)

// FSLibrary is a Source over one or more photo directories on disk. Photo ids
// are derived from canonical paths; creation and modification times come from
// the file mtime (filesystems do not portably expose a capture time).
type FSLibrary struct {
	roots      []string
	extensions []string
	recursive  bool

	mu    sync.RWMutex
	paths map[string]string // photo id -> absolute path
}

// NewFSLibrary creates a filesystem library over roots. extensions filters
// which files count as photos (empty = all).
func NewFSLibrary(roots, extensions []string, recursive bool) *FSLibrary {
	return &FSLibrary{
		roots:      roots,
		extensions: extensions,
		recursive:  recursive,
		paths:      make(map[string]string),
	}
}

// Enumerate walks the roots and returns references for every photo file,
// sorted by creation time in the requested order. Ties break on id so the
// order is stable.
func (l *FSLibrary) Enumerate(ctx context.Context, order Order) ([]models.PhotoRef, error) {
	var refs []models.PhotoRef
	seen := make(map[string]string)

	for _, root := range l.roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
		err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				// Unreadable entries are skipped, not fatal.
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				if !l.recursive && path != absRoot {
					return fs.SkipDir
				}
				return nil
			}
			if !l.allowed(path) {
				return nil
			}
			info, statErr := os.Stat(path)
			if statErr != nil || !info.Mode().IsRegular() {
				return nil
			}
			id := photoid.FromPath(path)
			if _, dup := seen[id]; dup {
				return nil
			}
			seen[id] = path
			refs = append(refs, models.PhotoRef{
				ID:         id,
				CreatedAt:  info.ModTime(),
				ModifiedAt: info.ModTime(),
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	l.mu.Lock()
	l.paths = seen
	l.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].CreatedAt.Equal(refs[j].CreatedAt) {
			return refs[i].ID < refs[j].ID
		}
		if order == NewestFirst {
			return refs[i].CreatedAt.After(refs[j].CreatedAt)
		}
		return refs[i].CreatedAt.Before(refs[j].CreatedAt)
	})
	return refs, nil
}

// Load reads and decodes the photo, downsampled to maxDim, and returns the
// content hash of the raw file bytes.
func (l *FSLibrary) Load(ctx context.Context, photoID string, maxDim int) (image.Image, string, error) {
	path, ok := l.path(photoID)
	if !ok {
		return nil, "", fmt.Errorf("unknown photo id: %s", photoID)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read photo: %w", err)
	}
	hash := photoid.ContentHash(data)
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode photo %s: %w", filepath.Base(path), err)
	}
	return utils.Downsample(img, maxDim), hash, nil
}

// Ref stats the photo's file and returns its current reference.
func (l *FSLibrary) Ref(ctx context.Context, photoID string) (models.PhotoRef, bool, error) {
	path, ok := l.path(photoID)
	if !ok {
		return models.PhotoRef{}, false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.PhotoRef{}, false, nil
		}
		return models.PhotoRef{}, false, fmt.Errorf("stat photo: %w", err)
	}
	return models.PhotoRef{ID: photoID, CreatedAt: info.ModTime(), ModifiedAt: info.ModTime()}, true, nil
}

// Filename returns the base filename for a photo id, if known.
func (l *FSLibrary) Filename(photoID string) (string, bool) {
	path, ok := l.path(photoID)
	if !ok {
		return "", false
	}
	return filepath.Base(path), true
}

// RefForPath stats path and returns its reference, registering the id so
// Load can resolve it. Used by the watcher for files appearing after the
// last enumeration.
func (l *FSLibrary) RefForPath(path string) (models.PhotoRef, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return models.PhotoRef{}, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return models.PhotoRef{}, fmt.Errorf("stat photo: %w", err)
	}
	if !info.Mode().IsRegular() {
		return models.PhotoRef{}, fmt.Errorf("not a regular file: %s", absPath)
	}
	id := photoid.FromPath(absPath)
	l.mu.Lock()
	l.paths[id] = absPath
	l.mu.Unlock()
	return models.PhotoRef{ID: id, CreatedAt: info.ModTime(), ModifiedAt: info.ModTime()}, nil
}

// Forget drops the id -> path mapping for a removed file and returns the id.
func (l *FSLibrary) Forget(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	id := photoid.FromPath(absPath)
	l.mu.Lock()
	delete(l.paths, id)
	l.mu.Unlock()
	return id
}

// Allowed reports whether path matches the library's extension filter.
func (l *FSLibrary) Allowed(path string) bool {
	return l.allowed(path)
}

func (l *FSLibrary) allowed(path string) bool {
	if len(l.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, a := range l.extensions {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == ext {
			return true
		}
	}
	return false
}

func (l *FSLibrary) path(photoID string) (string, bool) {
	l.mu.RLock()
	path, ok := l.paths[photoID]
	l.mu.RUnlock()
	return path, ok
}

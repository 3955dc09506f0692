package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

const defaultLocalPageSize = 1000

// LocalStore serves a directory tree as a single bucket. Keys are
// slash-separated paths relative to the root.
type LocalStore struct {
	root     string
	pageSize int
}

// NewLocalStore creates a store rooted at dir
func NewLocalStore(dir string, pageSize int) (*LocalStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store path %s is not a directory", dir)
	}
	if pageSize <= 0 {
		pageSize = defaultLocalPageSize
	}
	return &LocalStore{root: dir, pageSize: pageSize}, nil
}

// Root returns the store directory
func (s *LocalStore) Root() string { return s.root }

// List walks the tree in key order. The continuation token is the last key of
// the previous page.
func (s *LocalStore) List(ctx context.Context, prefix, token string) (*ListPage, error) {
	var keys []ObjectSummary
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) || key <= token {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		keys = append(keys, ObjectSummary{Key: key, LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Key < keys[j].Key })

	page := &ListPage{Objects: keys}
	if len(keys) > s.pageSize {
		page.Objects = keys[:s.pageSize]
		page.Truncated = true
		page.NextToken = page.Objects[len(page.Objects)-1].Key
	}
	return page, nil
}

// Get reads an object. The bucket is ignored.
func (s *LocalStore) Get(_ context.Context, ref Ref) (*Object, error) {
	clean := path.Clean("/" + ref.Key)[1:]
	if clean == "" {
		return nil, fmt.Errorf("%w: empty key", ErrNotFound)
	}
	full := filepath.Join(s.root, filepath.FromSlash(clean))

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.Key)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, ref.Key)
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref.Key, err)
	}

	return &Object{Key: clean, Content: content, LastModified: info.ModTime()}, nil
}

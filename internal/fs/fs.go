package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// TargetResolver finds the target file that corresponds to a source file.
type TargetResolver struct {
	sourceRoot    string
	targetRoot    string
	folderMapping map[string]string
	log           *zap.Logger

	once  sync.Once
	index map[string][]string
}

// NewTargetResolver creates a resolver. folderMapping maps a lowercased
// extension (".pks") to a folder under targetRoot.
func NewTargetResolver(sourceRoot, targetRoot string, folderMapping map[string]string, log *zap.Logger) *TargetResolver {
	if log == nil {
		log = zap.NewNop()
	}
	mapping := make(map[string]string, len(folderMapping))
	for ext, folder := range folderMapping {
		if n := NormalizeExtensions([]string{ext}); len(n) == 1 {
			mapping[n[0]] = folder
		}
	}
	return &TargetResolver{
		sourceRoot:    sourceRoot,
		targetRoot:    targetRoot,
		folderMapping: mapping,
		log:           log,
	}
}

// Resolve returns the target path for a source path relative to the source
// root. It tries the folder mapping, then the same relative path, then a
// search by file name. ok is false when nothing matches, which means the
// source file is a new unit.
func (r *TargetResolver) Resolve(rel string) (string, bool) {
	rel = filepath.FromSlash(rel)
	name := filepath.Base(rel)

	if folder, ok := r.folderMapping[strings.ToLower(filepath.Ext(name))]; ok && folder != "" {
		candidate := filepath.Join(r.targetRoot, folder, name)
		if isFile(candidate) {
			return candidate, true
		}
	}

	candidate := filepath.Join(r.targetRoot, rel)
	if isFile(candidate) {
		return candidate, true
	}

	matches := r.byName(name)
	switch len(matches) {
	case 0:
		return "", false
	case 1:
		return matches[0], true
	}

	parent := strings.ToLower(filepath.Base(filepath.Dir(filepath.Join(r.sourceRoot, rel))))
	for _, m := range matches {
		if strings.ToLower(filepath.Base(filepath.Dir(m))) == parent {
			return m, true
		}
	}
	r.log.Warn("multiple target matches, using first",
		zap.String("file", name),
		zap.Strings("matches", matches))
	return matches[0], true
}

// byName looks name up in an index of the target tree built on first use.
func (r *TargetResolver) byName(name string) []string {
	r.once.Do(func() {
		r.index = make(map[string][]string)
		err := filepath.WalkDir(r.targetRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() {
				r.index[d.Name()] = append(r.index[d.Name()], path)
			}
			return nil
		})
		if err != nil {
			r.log.Warn("could not index target tree", zap.String("root", r.targetRoot), zap.Error(err))
		}
		for _, paths := range r.index {
			sort.Strings(paths)
		}
	})
	return r.index[name]
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GetFileSHA256 returns the hex SHA-256 of a file's content.
func GetFileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fs: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsEmpty reports whether a directory has no entries.
func IsEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// Package instance gives every logical model its own physical copy of a
// native module so the OS loader never aliases two models to one loaded
// library (and its process-global state).
package instance

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultRoot is the directory, relative to the working directory, under
// which instance copies are created.
const DefaultRoot = "instances"

var ErrCopy = errors.New("instance copy failed")

// ModelName derives the model identity from a names file path:
// "data/coco.names" -> "coco".
func ModelName(namesFile string) string {
	base := filepath.Base(namesFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

// Path returns the absolute path the copy of baseModule for name lives at,
// without touching the filesystem.
func Path(root, name, baseModule string) (string, error) {
	if root == "" {
		root = DefaultRoot
	}
	return filepath.Abs(filepath.Join(root, name, filepath.Base(baseModule)))
}

// Materialize ensures root/name/<module file> exists, copying it from
// baseModule when absent, and returns its absolute path. An existing copy
// is never overwritten.
func Materialize(root, name, baseModule string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == ".." {
		return "", fmt.Errorf("%w: invalid model name %q", ErrCopy, name)
	}
	dst, err := Path(root, name, baseModule)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCopy, err)
	}
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrCopy, dir, err)
	}
	if err := copyInto(baseModule, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// copyInto writes src to a temp file next to dst and hard links it into
// place, so dst is either absent or complete and a concurrent writer that
// got there first wins.
func copyInto(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open base module: %v", ErrCopy, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat base module: %v", ErrCopy, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: copy %s: %v", ErrCopy, src, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()|0o500); err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	if err := os.Link(tmpName, dst); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("%w: place %s: %v", ErrCopy, dst, err)
	}
	return nil
}

package native

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvLibDir overrides every other base module location when set.
const EnvLibDir = "YOLO_LIB_DIR"

// Locate finds fileName in, in order: $YOLO_LIB_DIR, the given dirs, the
// executable's directory (and its lib/ and src/ children), then the
// working directory (and its lib/ and src/ children).
func Locate(fileName string, dirs ...string) (string, error) {
	var tried []string
	seen := make(map[string]bool)

	check := func(dir string) (string, bool) {
		if dir == "" {
			return "", false
		}
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		if seen[dir] {
			return "", false
		}
		seen[dir] = true
		tried = append(tried, dir)
		p := filepath.Join(dir, fileName)
		if fileExists(p) {
			return p, true
		}
		return "", false
	}

	if env := os.Getenv(EnvLibDir); env != "" {
		if p, ok := check(env); ok {
			return p, nil
		}
	}
	for _, d := range dirs {
		if p, ok := check(d); ok {
			return p, nil
		}
	}

	var roots []string
	if exePath, err := os.Executable(); err == nil {
		roots = append(roots, filepath.Dir(exePath))
	}
	if cwd, err := os.Getwd(); err == nil {
		roots = append(roots, cwd)
	}
	for _, root := range roots {
		for _, sub := range []string{"", "lib", "src"} {
			if p, ok := check(filepath.Join(root, sub)); ok {
				return p, nil
			}
		}
	}

	var diag strings.Builder
	diag.WriteString("tried locations:\n")
	for _, t := range tried {
		diag.WriteString("  - " + t + "\n")
	}
	return "", fmt.Errorf("%w: %q not found (set %s to override). %s", ErrModuleNotFound, fileName, EnvLibDir, diag.String())
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

package lawfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Extensions are the file extensions Glob keeps from pattern matches.
var Extensions = []string{".yaml", ".yml", ".json"}

// Glob expands each argument into law files. Plain paths are returned as
// given when they exist; patterns may use ** and only keep files with one of
// Extensions. The result is sorted and free of duplicates. A pattern that
// matches nothing is an error.
func Glob(args ...string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		clean := filepath.Clean(p)
		if !seen[clean] {
			seen[clean] = true
			out = append(out, clean)
		}
	}

	for _, arg := range args {
		if !hasMeta(arg) {
			info, err := os.Stat(arg)
			if err != nil {
				return nil, fmt.Errorf("law file %s: %w", arg, err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("law file %s is a directory (use %s/**/*.yaml)", arg, arg)
			}
			add(arg)
			continue
		}

		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob error: %w", err)
		}
		n := 0
		for _, m := range matches {
			if IsLawFile(m) {
				add(m)
				n++
			}
		}
		if n == 0 {
			return nil, fmt.Errorf("no law files match pattern: %s", arg)
		}
	}

	sort.Strings(out)
	return out, nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// IsLawFile reports whether p has one of Extensions.
func IsLawFile(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

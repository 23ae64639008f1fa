// Package file contains helpers for local file datasources: opening and
// creating files, expanding directories and globs into input lists, and
// splitting those lists between workers.
package file

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"flowbridge/internal/errors"
)

// ReadList reads a text file line by line and returns the non-empty lines
// that do not start with '#'. Order is preserved.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read list %s", path)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read list %s", path)
	}
	return out, nil
}

// Expand turns a tap path into concrete input files:
//   - a directory yields its regular, non-hidden files, sorted
//   - a glob pattern yields its sorted matches
//   - a path prefixed with '@' is a list file read with ReadList
//   - anything else is returned as is
func Expand(path string) ([]string, error) {
	if strings.HasPrefix(path, "@") {
		return ReadList(path[1:])
	}
	if strings.ContainsAny(path, "*?[") {
		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, errors.Wrapf(err, "glob %q", path)
		}
		if len(matches) == 0 {
			return nil, errors.Newf("glob %q matched no files", path)
		}
		sort.Strings(matches)
		return matches, nil
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		// Missing files surface when opened.
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %s", path)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		out = append(out, filepath.Join(path, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Partition returns the items owned by worker out of count workers, using
// round-robin assignment by index.
func Partition(items []string, worker, count int) []string {
	if count <= 1 {
		return items
	}
	var out []string
	for i, it := range items {
		if i%count == worker {
			out = append(out, it)
		}
	}
	return out
}

// PartName returns the per-worker output file name inside dir, e.g.
// part-00003.csv.
func PartName(dir string, worker int, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	name := fmt.Sprintf("part-%05d", worker)
	if ext != "" {
		name += "." + ext
	}
	return filepath.Join(dir, name)
}

// IsDir reports whether path names a directory: it ends with a separator or
// exists as one.
func IsDir(path string) bool {
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(os.PathSeparator)) {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func dirOf(path string) string {
	d := filepath.Dir(path)
	if d == "" {
		return "."
	}
	return d
}

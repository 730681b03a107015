package migrate

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	annotationUp   = "-- +goose Up"
	annotationDown = "-- +goose Down"
)

// ValidateDir checks the migrations in dir on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	return ValidateFS(os.DirFS(dir), ".")
}

// ValidateFS reports every badly named, duplicated, or unannotated .sql file
// under root, not just the first.
func ValidateFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", root, err)
	}

	var problems error
	versions := make(map[string]string, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: name must be YYYYMMDDHHMMSS_slug.sql", name))
			continue
		}
		if first, dup := versions[m[1]]; dup {
			problems = multierr.Append(problems, fmt.Errorf("%s: version %s already used by %s", name, m[1], first))
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, path.Join(root, name))
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		problems = multierr.Append(problems, checkAnnotations(name, body))
	}
	return problems
}

// checkAnnotations requires exactly one Up section followed by one Down.
func checkAnnotations(name string, body []byte) error {
	upLine, downLine := 0, 0
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for n := 1; scanner.Scan(); n++ {
		switch strings.TrimSpace(scanner.Text()) {
		case annotationUp:
			if upLine != 0 {
				return fmt.Errorf("%s:%d: second %q", name, n, annotationUp)
			}
			upLine = n
		case annotationDown:
			if downLine != 0 {
				return fmt.Errorf("%s:%d: second %q", name, n, annotationDown)
			}
			downLine = n
		}
	}
	switch {
	case upLine == 0:
		return fmt.Errorf("%s: missing %q", name, annotationUp)
	case downLine == 0:
		return fmt.Errorf("%s: missing %q", name, annotationDown)
	case downLine < upLine:
		return fmt.Errorf("%s: %q must come before %q", name, annotationUp, annotationDown)
	}
	return scanner.Err()
}

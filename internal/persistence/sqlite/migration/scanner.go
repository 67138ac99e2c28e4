package migration

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var fileNamePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// Scanner reads migration files from a file system.
type Scanner struct {
	files fs.FS
	dir   string
}

// NewScanner scans the root of files.
func NewScanner(files fs.FS) *Scanner {
	return &Scanner{files: files, dir: "."}
}

// NewScannerDir scans dir inside files.
func NewScannerDir(files fs.FS, dir string) *Scanner {
	return &Scanner{files: files, dir: dir}
}

// Scan returns every migration ordered by version. Non-SQL entries are ignored.
func (s *Scanner) Scan() ([]Migration, error) {
	entries, err := fs.ReadDir(s.files, s.dir)
	if err != nil {
		return nil, &Error{Path: s.dir, Operation: "read directory", Err: err}
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		m, err := s.parse(entry.Name())
		if err != nil {
			return nil, err
		}
		if other, ok := seen[m.Version]; ok {
			return nil, newError(m, "check duplicates", fmt.Errorf("%w: also in %s", ErrDuplicateVersion, other))
		}
		seen[m.Version] = entry.Name()
		migrations = append(migrations, m)
	}

	slices.SortFunc(migrations, func(a, b Migration) int { return a.Version - b.Version })
	return migrations, nil
}

func (s *Scanner) parse(name string) (Migration, error) {
	matches := fileNamePattern.FindStringSubmatch(name)
	if matches == nil {
		return Migration{}, &Error{Path: name, Operation: "validate filename",
			Err: fmt.Errorf("%w: %q does not match {version}_{description}.sql", ErrInvalidMigrationFile, name)}
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil || version <= 0 {
		return Migration{}, &Error{Path: name, Operation: "validate filename",
			Err: fmt.Errorf("%w: version %q must be a positive number", ErrInvalidMigrationFile, matches[1])}
	}

	p := path.Join(s.dir, name)
	content, err := fs.ReadFile(s.files, p)
	if err != nil {
		return Migration{}, &Error{Version: version, Path: p, Operation: "read file", Err: err}
	}
	m := Migration{
		Version:     version,
		Description: strings.ReplaceAll(matches[2], "_", " "),
		SQL:         string(content),
		Path:        p,
		Checksum:    fmt.Sprintf("%x", sha256.Sum256(content)),
	}
	if len(Statements(m.SQL)) == 0 {
		return Migration{}, newError(m, "validate content", fmt.Errorf("%w: no SQL statements", ErrInvalidMigrationFile))
	}
	if desc := descriptionFromComments(m.SQL); desc != "" {
		m.Description = desc
	}
	return m, nil
}

// Statements splits a migration body on semicolons and strips comment lines.
// Statements must not contain semicolons inside literals or triggers.
func Statements(sql string) []string {
	var out []string
	for _, stmt := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n"))
		}
	}
	return out
}

func descriptionFromComments(sql string) string {
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			return ""
		}
		if desc, ok := strings.CutPrefix(line, "-- Description:"); ok {
			return strings.TrimSpace(desc)
		}
	}
	return ""
}

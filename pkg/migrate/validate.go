package migrate

import (
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"regexp"
)

var fileNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

var requiredMarkers = [][]byte{[]byte("-- +goose Up"), []byte("-- +goose Down")}

// Validate checks that every .sql file at the root of fsys is named
// <YYYYMMDDHHMMSS>_<snake_name>.sql, that versions are unique, and that each file has both an Up
// and a Down section.
func Validate(fsys fs.FS) error {
	if fsys == nil {
		return fmt.Errorf("migrations fs is required")
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	versions := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		m := fileNameRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, dup := versions[m[1]]; dup {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %q: %w", name, err)
		}
		for _, marker := range requiredMarkers {
			if !bytes.Contains(body, marker) {
				return fmt.Errorf("migration %q missing %q", name, marker)
			}
		}
	}
	return nil
}

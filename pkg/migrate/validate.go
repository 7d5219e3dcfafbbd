package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	gooseUp             = "-- +goose Up"
	gooseDown           = "-- +goose Down"
	gooseStatementBegin = "-- +goose StatementBegin"
	gooseStatementEnd   = "-- +goose StatementEnd"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
)

// ValidateDir checks migration filenames and goose annotations. Versions and
// names are both unique, Up precedes Down, and StatementBegin/End pairs
// balance (the ledger's enum DO $$ blocks depend on them).
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	names := map[string]string{}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}

		version := m[1]
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name
		if prev, ok := names[m[2]]; ok {
			return fmt.Errorf("duplicate migration name %q in %q and %q", m[2], prev, name)
		}
		names[m[2]] = name

		full := filepath.Join(dir, name)
		b, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("read file %q: %w", full, err)
		}
		if err := validateAnnotations(name, string(b)); err != nil {
			return err
		}
	}

	if len(seen) == 0 {
		return fmt.Errorf("no migrations found in %q", dir)
	}
	return nil
}

func validateAnnotations(name, txt string) error {
	up := strings.Index(txt, gooseUp)
	if up < 0 {
		return fmt.Errorf("migration %q missing %q", name, gooseUp)
	}
	down := strings.Index(txt, gooseDown)
	if down < 0 {
		return fmt.Errorf("migration %q missing %q", name, gooseDown)
	}
	if down < up {
		return fmt.Errorf("migration %q has %q before %q", name, gooseDown, gooseUp)
	}
	begins := strings.Count(txt, gooseStatementBegin)
	ends := strings.Count(txt, gooseStatementEnd)
	if begins != ends {
		return fmt.Errorf("migration %q has %d StatementBegin but %d StatementEnd", name, begins, ends)
	}
	return nil
}

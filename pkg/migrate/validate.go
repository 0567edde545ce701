package migrate

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"github.com/pressly/goose/v3"
)

var migrationFileRe = regexp.MustCompile(`^\d{14}_[a-z0-9_]+\.sql$`)

var (
	annotationUp   = []byte("-- +goose Up")
	annotationDown = []byte("-- +goose Down")
)

// ValidateDir checks every .sql file in dir: timestamped name, an Up section
// ahead of a Down section, and a version set goose can collect.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	fsys := os.DirFS(dir)
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("list %q: %w", dir, err)
	}

	for _, name := range names {
		if !migrationFileRe.MatchString(name) {
			return fmt.Errorf("%s: expected %s_name.sql", name, versionLayout)
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := checkSections(body); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	goose.SetBaseFS(nil)
	if _, err := goose.CollectMigrations(dir, 0, goose.MaxVersion); err != nil {
		return fmt.Errorf("collect migrations: %w", err)
	}
	return nil
}

func checkSections(body []byte) error {
	up := bytes.Index(body, annotationUp)
	down := bytes.Index(body, annotationDown)
	switch {
	case up < 0:
		return fmt.Errorf("missing %q", annotationUp)
	case down < 0:
		return fmt.Errorf("missing %q", annotationDown)
	case down < up:
		return errors.New("down section precedes up section")
	}
	return nil
}

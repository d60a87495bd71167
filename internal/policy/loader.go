package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadDir loads every .rego file under dir. Module names are the paths
// relative to dir.
func (g *Guard) LoadDir(ctx context.Context, dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("policy directory: %w", err)
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".rego") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk policy directory: %w", err)
	}
	sort.Strings(files)

	for _, path := range files {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return fmt.Errorf("resolve policy path %s: %w", path, err)
		}
		content, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("failed to read policy file %s: %w", path, err)
		}
		if err := g.LoadPolicy(ctx, rel, string(content)); err != nil {
			return err
		}
	}

	g.logger.WithContext(ctx).Info().
		Str("dir", dir).
		Int("count", len(files)).
		Msg("loaded guardrail policies")
	return nil
}

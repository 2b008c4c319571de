package content

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ignite/newsletter/internal/pkg/logger"
)

// DirLoader reads markdown issues from a local directory.
type DirLoader struct {
	Dir string
}

func (l DirLoader) Load(ctx context.Context) ([]Entry, error) {
	files, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("read content dir %s: %w", l.Dir, err)
	}

	var entries []Entry
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.IsDir() || !isMarkdown(f.Name()) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(l.Dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name(), err)
		}
		e, err := ParseMarkdown(slugOf(f.Name()), raw)
		if err != nil {
			logger.Warn("skipping unreadable issue file", "file", f.Name(), "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

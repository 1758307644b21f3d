package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/driver/webdriver"
	"github.com/xkilldash9x/wikiprobe/internal/launcher"
)

const captureTimeout = 20 * time.Second

// captureArtifacts saves what the session shows after a failed case under
// <artifacts_dir>/<suite>/<case>/. It returns the files it managed to write.
func (r *Runner) captureArtifacts(ctx context.Context, suite Suite, name string, s driver.Session) ([]string, error) {
	if r.cfg.Run.ArtifactsDir == "" || s == nil {
		return nil, nil
	}
	// The case context may be the reason for the failure.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()

	dir := filepath.Join(r.cfg.Run.ArtifactsDir, suite.Name, sanitize(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts dir: %w", err)
	}

	var (
		written []string
		errs    []error
	)
	save := func(file string, data []byte) {
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			errs = append(errs, err)
			return
		}
		written = append(written, path)
	}

	src, err := s.Source(ctx)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("source: %w", err))
	case suite.Kind == launcher.KindMobile:
		save("hierarchy.xml", []byte(src))
		if nodes, err := webdriver.ElementsFromSource(src); err != nil {
			errs = append(errs, fmt.Errorf("hierarchy: %w", err))
		} else {
			save("hierarchy.txt", []byte(webdriver.Summarize(nodes)))
		}
	default:
		save("page.html", []byte(src))
	}

	if shooter, ok := s.(driver.Screenshotter); ok {
		if png, err := shooter.Screenshot(ctx); err != nil {
			errs = append(errs, fmt.Errorf("screenshot: %w", err))
		} else {
			save("screenshot.png", png)
		}
	}
	return written, errors.Join(errs...)
}

// sanitize turns a case name such as "search_queries/World War II" into a
// single path element.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
}

// Package scenario holds the end-to-end suites run against the Wikipedia site
// and app, and the runner that executes them on launcher sessions.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/launcher"
	"github.com/xkilldash9x/wikiprobe/internal/pages/mobile"
	"github.com/xkilldash9x/wikiprobe/internal/pages/web"
)

// ErrExpectation marks a scenario check that did not hold, as opposed to an
// automation failure.
var ErrExpectation = errors.New("expectation failed")

func expect(ok bool, format string, args ...any) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrExpectation, fmt.Sprintf(format, args...))
}

// all returns the first failed check.
func all(checks ...error) error {
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

// T is what a running case gets: the session and the page environments
// built on it.
type T struct {
	Session driver.Session
	Web     web.Env
	Mobile  mobile.Env
	Queries Queries
	Logger  *zap.Logger

	mgr  *launcher.Manager
	sess *launcher.Session
}

// Case is one scenario.
type Case struct {
	Name        string
	Description string
	Run         func(ctx context.Context, t *T) error
}

// Suite is an ordered list of cases sharing one session.
type Suite struct {
	Name string
	Kind launcher.Kind
	// setUp runs before every case.
	setUp func(ctx context.Context, t *T) error
	Cases []Case
}

// Names lists the case names in run order.
func (s Suite) Names() []string {
	out := make([]string, len(s.Cases))
	for i, c := range s.Cases {
		out[i] = c.Name
	}
	return out
}

// Filter keeps the cases selected by only. A name selects the case with that
// name and, for data-driven groups, every "name/<query>" case. An empty list
// selects everything.
func (s Suite) Filter(only []string) Suite {
	if len(only) == 0 {
		return s
	}
	var kept []Case
	for _, c := range s.Cases {
		for _, name := range only {
			if c.Name == name || strings.HasPrefix(c.Name, name+"/") {
				kept = append(kept, c)
				break
			}
		}
	}
	s.Cases = kept
	return s
}

// Queries are the data-driven search inputs.
type Queries struct {
	Web    []string `yaml:"web"`
	Mobile []string `yaml:"mobile"`
}

// DefaultQueries returns the built-in query lists.
func DefaultQueries() Queries {
	return Queries{
		Web:    []string{"Python programming language", "World War II", "Solar System"},
		Mobile: []string{"Python", "Einstein", "Moscow"},
	}
}

// LoadQueries reads a YAML query file. An empty path or a missing section
// falls back to the defaults.
func LoadQueries(path string) (Queries, error) {
	q := DefaultQueries()
	if path == "" {
		return q, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Queries{}, fmt.Errorf("read queries file: %w", err)
	}
	var file Queries
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Queries{}, fmt.Errorf("parse queries file %s: %w", path, err)
	}
	if len(file.Web) > 0 {
		q.Web = file.Web
	}
	if len(file.Mobile) > 0 {
		q.Mobile = file.Mobile
	}
	for _, list := range [][]string{q.Web, q.Mobile} {
		for _, s := range list {
			if strings.TrimSpace(s) == "" {
				return Queries{}, fmt.Errorf("queries file %s: blank query", path)
			}
		}
	}
	return q, nil
}

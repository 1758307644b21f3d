// Package web holds the page objects for the Wikipedia website: the
// www.wikipedia.org portal, the English main page, other language main pages,
// search results and articles.
//
// Methods that return a different page type have already waited for that
// page to load. Probe methods (Is*, Has*) never fail; they report false.
package web

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
	"github.com/xkilldash9x/wikiprobe/internal/screen"
	"github.com/xkilldash9x/wikiprobe/internal/wait"
)

// Env is what every page constructor needs.
type Env struct {
	Session driver.Session
	Poller  *wait.Poller
	Logger  *zap.Logger
	// PortalURL is the multilingual portal, https://www.wikipedia.org by default.
	PortalURL string
	// EnglishURL is the English main page.
	EnglishURL string
}

func (e Env) base(name string) *screen.Base {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return screen.NewBase(e.Session, e.Poller, logger, name)
}

var documentBody = locator.ByCSS("body")

// navigate runs act and then waits for the current document to be replaced,
// so the caller never reads the page it is leaving.
func navigate(ctx context.Context, b *screen.Base, act func(context.Context) error) error {
	old, findErr := b.Session().FindOne(driver.WithoutImplicitWait(ctx), documentBody)
	if err := act(ctx); err != nil {
		return err
	}
	if findErr != nil {
		return nil
	}
	return b.Ref(old, "previous document").WaitInvisible(ctx)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

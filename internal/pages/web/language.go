package web

import (
	"context"
	"strings"

	"github.com/xkilldash9x/wikiprobe/internal/locator"
	"github.com/xkilldash9x/wikiprobe/internal/screen"
)

// LanguageHomePage is the main page of a non-English edition.
type LanguageHomePage struct {
	*screen.Base
	env  Env
	code string

	heading     locator.Locator
	searchInput locator.Locator
}

func NewLanguageHomePage(env Env, code string) *LanguageHomePage {
	return &LanguageHomePage{
		Base:        env.base("LanguageHomePage"),
		env:         env,
		code:        code,
		heading:     locator.ByID("firstHeading"),
		searchInput: locator.ByName("search"),
	}
}

func openLanguage(ctx context.Context, env Env, code string) (*LanguageHomePage, error) {
	p := NewLanguageHomePage(env, code)
	if err := p.WaitURLContains(ctx, code+".wikipedia.org"); err != nil {
		return nil, err
	}
	if _, err := p.WaitVisible(ctx, p.searchInput); err != nil {
		return nil, err
	}
	return p, nil
}

// Code returns the edition's language code.
func (p *LanguageHomePage) Code() string { return p.code }

func (p *LanguageHomePage) IsPageLoaded(ctx context.Context) bool {
	url, err := p.CurrentURL(ctx)
	if err != nil || !strings.Contains(url, p.code+".wikipedia.org") {
		return false
	}
	return p.IsDisplayed(ctx, p.searchInput)
}

// Heading returns the main page heading in the edition's language.
func (p *LanguageHomePage) Heading(ctx context.Context) (string, error) {
	return p.ReadText(ctx, p.heading)
}

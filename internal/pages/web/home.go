package web

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/locator"
	"github.com/xkilldash9x/wikiprobe/internal/screen"
)

// HomePage is the www.wikipedia.org language portal.
type HomePage struct {
	*screen.Base
	env Env

	searchInput       locator.Locator
	searchButton      locator.Locator
	centralLogo       locator.Locator
	languageSelect    locator.Locator
	suggestions       locator.Locator
	featuredLanguages locator.Locator
	languageLinks     map[string]locator.Locator
}

func NewHomePage(env Env) *HomePage {
	p := &HomePage{
		Base:              env.base("HomePage"),
		env:               env,
		searchInput:       locator.ByID("searchInput"),
		searchButton:      locator.ByCSS("button[type='submit']"),
		centralLogo:       locator.ByCSS(".central-textlogo-wrapper"),
		languageSelect:    locator.ByID("searchLanguage"),
		suggestions:       locator.ByCSS(".suggestion-link"),
		featuredLanguages: locator.ByCSS(".central-featured-lang"),
		languageLinks:     make(map[string]locator.Locator),
	}
	for _, code := range []string{"en", "ru", "de", "fr", "es"} {
		p.languageLinks[code] = locator.ByID("js-link-box-" + code)
	}
	return p
}

// Open loads the portal and waits for the logo.
func (p *HomePage) Open(ctx context.Context) (*HomePage, error) {
	if err := p.NavigateTo(ctx, p.env.PortalURL); err != nil {
		return nil, fmt.Errorf("open portal: %w", err)
	}
	if _, err := p.WaitVisible(ctx, p.centralLogo); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *HomePage) IsPageLoaded(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.centralLogo) && p.IsDisplayed(ctx, p.searchInput)
}

func (p *HomePage) EnterSearchQuery(ctx context.Context, query string) error {
	return p.Type(ctx, p.searchInput, query)
}

// ClickSearch submits the portal search form.
func (p *HomePage) ClickSearch(ctx context.Context) (*SearchResultsPage, error) {
	err := navigate(ctx, p.Base, func(ctx context.Context) error {
		return p.Click(ctx, p.searchButton)
	})
	if err != nil {
		return nil, fmt.Errorf("submit portal search: %w", err)
	}
	return openResults(ctx, p.env)
}

func (p *HomePage) Search(ctx context.Context, query string) (*SearchResultsPage, error) {
	p.Logger().Info("Searching from portal.", zap.String("query", query))
	if err := p.EnterSearchQuery(ctx, query); err != nil {
		return nil, err
	}
	return p.ClickSearch(ctx)
}

// SearchSuggestions returns the dropdown entries once their count settles.
func (p *HomePage) SearchSuggestions(ctx context.Context) ([]string, error) {
	if _, err := p.WaitCountStable(ctx, p.suggestions, 3); err != nil {
		return nil, err
	}
	return p.Texts(ctx, p.suggestions)
}

func (p *HomePage) ClickFirstSuggestion(ctx context.Context) (*ArticlePage, error) {
	if _, err := p.WaitCountStable(ctx, p.suggestions, 3); err != nil {
		return nil, err
	}
	els, err := p.FindAll(ctx, p.suggestions)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, screen.ErrNoSuggestions
	}
	err = navigate(ctx, p.Base, p.Ref(els[0], "first suggestion").Click)
	if err != nil {
		return nil, fmt.Errorf("click suggestion: %w", err)
	}
	return openArticle(ctx, p.env)
}

func (p *HomePage) clickLanguage(ctx context.Context, code string) error {
	loc, ok := p.languageLinks[code]
	if !ok {
		loc = locator.ByID("js-link-box-" + code)
	}
	return navigate(ctx, p.Base, func(ctx context.Context) error {
		return p.Click(ctx, loc)
	})
}

func (p *HomePage) ClickEnglish(ctx context.Context) (*EnglishHomePage, error) {
	if err := p.clickLanguage(ctx, "en"); err != nil {
		return nil, fmt.Errorf("open English Wikipedia: %w", err)
	}
	return openEnglish(ctx, p.env)
}

// ClickLanguage follows the featured link for code to that edition's main page.
func (p *HomePage) ClickLanguage(ctx context.Context, code string) (*LanguageHomePage, error) {
	if err := p.clickLanguage(ctx, code); err != nil {
		return nil, fmt.Errorf("open %s Wikipedia: %w", code, err)
	}
	return openLanguage(ctx, p.env, code)
}

func (p *HomePage) ClickRussian(ctx context.Context) (*LanguageHomePage, error) {
	return p.ClickLanguage(ctx, "ru")
}

func (p *HomePage) ClickGerman(ctx context.Context) (*LanguageHomePage, error) {
	return p.ClickLanguage(ctx, "de")
}

func (p *HomePage) ClickFrench(ctx context.Context) (*LanguageHomePage, error) {
	return p.ClickLanguage(ctx, "fr")
}

func (p *HomePage) ClickSpanish(ctx context.Context) (*LanguageHomePage, error) {
	return p.ClickLanguage(ctx, "es")
}

func (p *HomePage) IsEnglishLinkDisplayed(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.languageLinks["en"])
}

func (p *HomePage) IsRussianLinkDisplayed(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.languageLinks["ru"])
}

func (p *HomePage) IsSearchInputDisplayed(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.searchInput)
}

func (p *HomePage) IsLogoDisplayed(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.centralLogo)
}

func (p *HomePage) FeaturedLanguageCount(ctx context.Context) int {
	return p.Count(ctx, p.featuredLanguages)
}

// SelectSearchLanguage picks the edition the portal search is sent to.
func (p *HomePage) SelectSearchLanguage(ctx context.Context, code string) error {
	return p.SelectOption(ctx, p.languageSelect, code)
}

// SelectedSearchLanguage returns the value of the language selector.
func (p *HomePage) SelectedSearchLanguage(ctx context.Context) (string, error) {
	return p.ReadAttribute(ctx, p.languageSelect, "value")
}

func (p *HomePage) SearchPlaceholder(ctx context.Context) (string, error) {
	return p.ReadAttribute(ctx, p.searchInput, "placeholder")
}

func (p *HomePage) SearchQuery(ctx context.Context) (string, error) {
	return p.ReadAttribute(ctx, p.searchInput, "value")
}

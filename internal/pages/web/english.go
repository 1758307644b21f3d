package web

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/locator"
	"github.com/xkilldash9x/wikiprobe/internal/screen"
)

// EnglishHomePage is the en.wikipedia.org Main Page.
type EnglishHomePage struct {
	*screen.Base
	env Env

	searchInput    locator.Locator
	searchButton   locator.Locator
	topBanner      locator.Locator
	logo           locator.Locator
	mainPageLink   locator.Locator
	contentsLink   locator.Locator
	currentEvents  locator.Locator
	randomArticle  locator.Locator
	featured       locator.Locator
	didYouKnow     locator.Locator
	inTheNews      locator.Locator
	suggestionItem locator.Locator
}

func NewEnglishHomePage(env Env) *EnglishHomePage {
	return &EnglishHomePage{
		Base:           env.base("EnglishHomePage"),
		env:            env,
		searchInput:    locator.ByName("search"),
		searchButton:   locator.ByCSS("button.cdx-button"),
		topBanner:      locator.ByID("mp-topbanner"),
		logo:           locator.ByCSS(".mw-logo"),
		mainPageLink:   locator.ByID("n-mainpage-description"),
		contentsLink:   locator.ByID("n-contents"),
		currentEvents:  locator.ByID("n-currentevents"),
		randomArticle:  locator.ByID("n-randompage"),
		featured:       locator.ByID("mp-tfa"),
		didYouKnow:     locator.ByID("mp-dyk"),
		inTheNews:      locator.ByID("mp-itn"),
		suggestionItem: locator.ByCSS(".cdx-menu-item"),
	}
}

func openEnglish(ctx context.Context, env Env) (*EnglishHomePage, error) {
	p := NewEnglishHomePage(env)
	if err := p.waitLoaded(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *EnglishHomePage) waitLoaded(ctx context.Context) error {
	if err := p.WaitTitleContains(ctx, "Wikipedia"); err != nil {
		return err
	}
	_, err := p.WaitVisible(ctx, p.searchInput)
	return err
}

// Open loads the English main page and waits for its title.
func (p *EnglishHomePage) Open(ctx context.Context) (*EnglishHomePage, error) {
	if err := p.NavigateTo(ctx, p.env.EnglishURL); err != nil {
		return nil, fmt.Errorf("open English main page: %w", err)
	}
	if err := p.waitLoaded(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *EnglishHomePage) IsPageLoaded(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.logo) && p.IsDisplayed(ctx, p.searchInput)
}

func (p *EnglishHomePage) EnterSearchQuery(ctx context.Context, query string) error {
	return p.Type(ctx, p.searchInput, query)
}

func (p *EnglishHomePage) ClickSearchButton(ctx context.Context) (*SearchResultsPage, error) {
	err := navigate(ctx, p.Base, func(ctx context.Context) error {
		return p.Click(ctx, p.searchButton)
	})
	if err != nil {
		return nil, fmt.Errorf("submit search: %w", err)
	}
	return openResults(ctx, p.env)
}

func (p *EnglishHomePage) Search(ctx context.Context, query string) (*SearchResultsPage, error) {
	p.Logger().Info("Searching.", zap.String("query", query))
	if err := p.EnterSearchQuery(ctx, query); err != nil {
		return nil, err
	}
	return p.ClickSearchButton(ctx)
}

func (p *EnglishHomePage) follow(ctx context.Context, loc locator.Locator) error {
	return navigate(ctx, p.Base, func(ctx context.Context) error {
		return p.Click(ctx, loc)
	})
}

func (p *EnglishHomePage) ClickRandomArticle(ctx context.Context) (*ArticlePage, error) {
	if err := p.follow(ctx, p.randomArticle); err != nil {
		return nil, fmt.Errorf("open random article: %w", err)
	}
	return openArticle(ctx, p.env)
}

func (p *EnglishHomePage) IsLogoDisplayed(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.logo)
}

func (p *EnglishHomePage) IsSearchInputDisplayed(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.searchInput)
}

func (p *EnglishHomePage) IsTopBannerDisplayed(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.topBanner)
}

func (p *EnglishHomePage) IsFeaturedArticleDisplayed(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.featured)
}

func (p *EnglishHomePage) IsDidYouKnowDisplayed(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.didYouKnow)
}

func (p *EnglishHomePage) IsInTheNewsDisplayed(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.inTheNews)
}

// ClickMainPage follows the sidebar link back to this page.
func (p *EnglishHomePage) ClickMainPage(ctx context.Context) (*EnglishHomePage, error) {
	if err := p.follow(ctx, p.mainPageLink); err != nil {
		return nil, fmt.Errorf("open main page: %w", err)
	}
	if err := p.waitLoaded(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// ClickContents opens the Contents project page.
func (p *EnglishHomePage) ClickContents(ctx context.Context) (*ArticlePage, error) {
	if err := p.follow(ctx, p.contentsLink); err != nil {
		return nil, fmt.Errorf("open contents: %w", err)
	}
	return openArticle(ctx, p.env)
}

// ClickCurrentEvents opens the Current events portal.
func (p *EnglishHomePage) ClickCurrentEvents(ctx context.Context) (*ArticlePage, error) {
	if err := p.follow(ctx, p.currentEvents); err != nil {
		return nil, fmt.Errorf("open current events: %w", err)
	}
	return openArticle(ctx, p.env)
}

// SearchSuggestions returns the header dropdown entries once their count settles.
func (p *EnglishHomePage) SearchSuggestions(ctx context.Context) ([]string, error) {
	if _, err := p.WaitCountStable(ctx, p.suggestionItem, 3); err != nil {
		return nil, err
	}
	return p.Texts(ctx, p.suggestionItem)
}

func (p *EnglishHomePage) SearchQuery(ctx context.Context) (string, error) {
	return p.ReadAttribute(ctx, p.searchInput, "value")
}

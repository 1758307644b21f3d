package web

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/locator"
	"github.com/xkilldash9x/wikiprobe/internal/screen"
	"github.com/xkilldash9x/wikiprobe/internal/wait"
)

// SearchResultsPage is Special:Search. A query without matches is a valid
// state: HasResults reports false and ClickFirstResult fails with
// screen.ErrNoResults.
type SearchResultsPage struct {
	*screen.Base
	env Env

	resultLinks  locator.Locator
	results      locator.Locator
	container    locator.Locator
	searchInput  locator.Locator
	searchButton locator.Locator
	nextPage     locator.Locator
	prevPage     locator.Locator
	noResults    locator.Locator
	articleBody  locator.Locator
}

func NewSearchResultsPage(env Env) *SearchResultsPage {
	return &SearchResultsPage{
		Base:         env.base("SearchResultsPage"),
		env:          env,
		resultLinks:  locator.ByCSS(".mw-search-result-heading a"),
		results:      locator.ByCSS(".mw-search-result"),
		container:    locator.ByCSS(".searchresults"),
		searchInput:  locator.ByName("search"),
		searchButton: locator.ByCSS("button.cdx-button"),
		nextPage:     locator.ByCSS(".mw-nextlink"),
		prevPage:     locator.ByCSS(".mw-prevlink"),
		noResults:    locator.ByCSS(".mw-search-nonefound"),
		articleBody:  locator.ByCSS(".mw-parser-output"),
	}
}

func openResults(ctx context.Context, env Env) (*SearchResultsPage, error) {
	p := NewSearchResultsPage(env)
	if err := p.waitLoaded(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// waitLoaded waits for the results block. A search that Wikipedia resolves
// straight to an article lands on an article body instead, which also counts
// as loaded.
func (p *SearchResultsPage) waitLoaded(ctx context.Context) error {
	s := p.Session()
	i, err := p.WaitAny(ctx,
		wait.Bool(wait.ElementVisible(s, p.container)),
		wait.Bool(wait.ElementVisible(s, p.articleBody)),
	)
	if err != nil {
		return fmt.Errorf("search results did not load: %w", err)
	}
	if i == 1 {
		p.Logger().Debug("Search resolved directly to an article.")
	}
	return nil
}

// IsPageLoaded reports whether the browser is on a search or wiki URL.
func (p *SearchResultsPage) IsPageLoaded(ctx context.Context) bool {
	url, err := p.CurrentURL(ctx)
	if err != nil {
		return false
	}
	return strings.Contains(url, "search") || strings.Contains(url, "wiki/")
}

func (p *SearchResultsPage) HasResults(ctx context.Context) bool {
	return p.ResultsCount(ctx) > 0
}

func (p *SearchResultsPage) ResultsCount(ctx context.Context) int {
	return p.Count(ctx, p.results)
}

func (p *SearchResultsPage) ResultTitles(ctx context.Context) ([]string, error) {
	return p.Texts(ctx, p.resultLinks)
}

func (p *SearchResultsPage) FirstResultTitle(ctx context.Context) (string, error) {
	titles, err := p.ResultTitles(ctx)
	if err != nil {
		return "", err
	}
	if len(titles) == 0 {
		return "", screen.ErrNoResults
	}
	return titles[0], nil
}

func (p *SearchResultsPage) ClickFirstResult(ctx context.Context) (*ArticlePage, error) {
	if !p.HasResults(ctx) {
		return nil, screen.ErrNoResults
	}
	return p.ClickResult(ctx, 0)
}

// ClickResult opens the i-th result on this page.
func (p *SearchResultsPage) ClickResult(ctx context.Context, i int) (*ArticlePage, error) {
	links, err := p.FindAll(ctx, p.resultLinks)
	if err != nil {
		return nil, err
	}
	if err := screen.CheckIndex(i, len(links)); err != nil {
		return nil, err
	}
	p.Logger().Info("Opening search result.", zap.Int("index", i))
	if err := navigate(ctx, p.Base, p.Ref(links[i], fmt.Sprintf("result %d", i)).Click); err != nil {
		return nil, fmt.Errorf("open result %d: %w", i, err)
	}
	return openArticle(ctx, p.env)
}

// ClickResultContaining opens the first result whose title contains text,
// ignoring case.
func (p *SearchResultsPage) ClickResultContaining(ctx context.Context, text string) (*ArticlePage, error) {
	link, err := p.FindContaining(ctx, p.resultLinks, text)
	if err != nil {
		return nil, err
	}
	p.Logger().Info("Opening search result.", zap.String("matching", text))
	if err := navigate(ctx, p.Base, p.Ref(link, fmt.Sprintf("result %q", text)).Click); err != nil {
		return nil, fmt.Errorf("open result %q: %w", text, err)
	}
	return openArticle(ctx, p.env)
}

// Search runs a new query from the header search box.
func (p *SearchResultsPage) Search(ctx context.Context, query string) (*SearchResultsPage, error) {
	if err := p.Type(ctx, p.searchInput, query); err != nil {
		return nil, err
	}
	err := navigate(ctx, p.Base, func(ctx context.Context) error {
		return p.Click(ctx, p.searchButton)
	})
	if err != nil {
		return nil, fmt.Errorf("submit search: %w", err)
	}
	return openResults(ctx, p.env)
}

func (p *SearchResultsPage) HasNextPage(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.nextPage)
}

func (p *SearchResultsPage) ClickNextPage(ctx context.Context) (*SearchResultsPage, error) {
	return p.page(ctx, p.nextPage)
}

func (p *SearchResultsPage) HasPreviousPage(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.prevPage)
}

func (p *SearchResultsPage) ClickPreviousPage(ctx context.Context) (*SearchResultsPage, error) {
	return p.page(ctx, p.prevPage)
}

func (p *SearchResultsPage) page(ctx context.Context, link locator.Locator) (*SearchResultsPage, error) {
	err := navigate(ctx, p.Base, func(ctx context.Context) error {
		return p.Click(ctx, link)
	})
	if err != nil {
		return nil, fmt.Errorf("change results page: %w", err)
	}
	return openResults(ctx, p.env)
}

func (p *SearchResultsPage) IsNoResultsMessageDisplayed(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.noResults)
}

// SearchQuery returns the query shown in the header search box.
func (p *SearchResultsPage) SearchQuery(ctx context.Context) (string, error) {
	return p.ReadAttribute(ctx, p.searchInput, "value")
}

// AnyResultContains reports whether any result title contains text, ignoring case.
func (p *SearchResultsPage) AnyResultContains(ctx context.Context, text string) bool {
	titles, err := p.ResultTitles(ctx)
	if err != nil {
		return false
	}
	for _, t := range titles {
		if containsFold(t, text) {
			return true
		}
	}
	return false
}

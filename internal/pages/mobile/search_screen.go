package mobile

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/locator"
	"github.com/xkilldash9x/wikiprobe/internal/screen"
	"github.com/xkilldash9x/wikiprobe/internal/wait"
)

// SearchScreen is the search toolbar with recent searches or live results.
type SearchScreen struct {
	*screen.Base
	env Env

	searchInput   locator.Locator
	closeButton   locator.Locator
	cabView       locator.Locator
	resultTitles  locator.Locator
	resultDescs   locator.Locator
	resultsList   locator.Locator
	resultItems   locator.Locator
	emptyView     locator.Locator
	recentList    locator.Locator
	progressBar   locator.Locator
	stableSamples int
}

func NewSearchScreen(env Env) *SearchScreen {
	return &SearchScreen{
		Base:          env.base("SearchScreen"),
		env:           env,
		searchInput:   locator.ByID("search_src_text"),
		closeButton:   locator.ByID("search_close_btn"),
		cabView:       locator.ByID("search_cab_view"),
		resultTitles:  locator.ByID("page_list_item_title"),
		resultDescs:   locator.ByID("page_list_item_description"),
		resultsList:   locator.ByID("search_results_list"),
		resultItems:   locator.ByID("page_list_item_container"),
		emptyView:     locator.ByID("search_empty_view"),
		recentList:    locator.ByID("recent_searches_list"),
		progressBar:   locator.ByID("search_progress_bar"),
		stableSamples: 2,
	}
}

func openSearch(ctx context.Context, env Env) (*SearchScreen, error) {
	return NewSearchScreen(env).WaitForSearchScreen(ctx)
}

func (s *SearchScreen) WaitForSearchScreen(ctx context.Context) (*SearchScreen, error) {
	if _, err := s.WaitVisible(ctx, s.searchInput); err != nil {
		return nil, fmt.Errorf("search screen did not load: %w", err)
	}
	return s, nil
}

func (s *SearchScreen) IsSearchScreenLoaded(ctx context.Context) bool {
	return s.IsDisplayed(ctx, s.searchInput) || s.IsDisplayed(ctx, s.cabView)
}

// IsSearchInProgress reports whether the results spinner is showing.
func (s *SearchScreen) IsSearchInProgress(ctx context.Context) bool {
	return s.IsDisplayed(ctx, s.progressBar)
}

func (s *SearchScreen) EnterSearchQuery(ctx context.Context, query string) (*SearchScreen, error) {
	if err := s.Type(ctx, s.searchInput, query); err != nil {
		return nil, err
	}
	return s, nil
}

// ClearSearch taps the clear button when there is a query to clear.
func (s *SearchScreen) ClearSearch(ctx context.Context) (*SearchScreen, error) {
	if !s.IsDisplayed(ctx, s.closeButton) {
		return s, nil
	}
	if err := s.Click(ctx, s.closeButton); err != nil {
		return nil, err
	}
	return s, nil
}

// WaitForSearchResults waits for either the results list or the empty view,
// then for the number of results to settle.
func (s *SearchScreen) WaitForSearchResults(ctx context.Context) (*SearchScreen, error) {
	sess := s.Session()
	i, err := s.WaitAny(ctx,
		wait.Bool(wait.ElementVisible(sess, s.resultsList)),
		wait.Bool(wait.ElementVisible(sess, s.emptyView)),
	)
	if err != nil {
		return nil, fmt.Errorf("search results did not load: %w", err)
	}
	if i == 1 {
		s.Logger().Debug("Search returned no results.")
		return s, nil
	}
	n, err := s.WaitCountStable(ctx, s.resultTitles, s.stableSamples)
	if err != nil {
		return nil, err
	}
	s.Logger().Debug("Search results settled.", zap.Int("count", n))
	return s, nil
}

func (s *SearchScreen) HasSearchResults(ctx context.Context) bool {
	return s.SearchResultsCount(ctx) > 0
}

func (s *SearchScreen) SearchResultsCount(ctx context.Context) int {
	return s.Count(ctx, s.resultItems)
}

func (s *SearchScreen) SearchResultTitles(ctx context.Context) ([]string, error) {
	return s.Texts(ctx, s.resultTitles)
}

// SearchResultDescriptions returns the short descriptions shown under
// results that have one.
func (s *SearchScreen) SearchResultDescriptions(ctx context.Context) ([]string, error) {
	return s.Texts(ctx, s.resultDescs)
}

func (s *SearchScreen) FirstResultTitle(ctx context.Context) (string, error) {
	titles, err := s.SearchResultTitles(ctx)
	if err != nil {
		return "", err
	}
	if len(titles) == 0 {
		return "", screen.ErrNoResults
	}
	return titles[0], nil
}

// ClickFirstResult opens the first result title once one has rendered.
func (s *SearchScreen) ClickFirstResult(ctx context.Context) (*ArticleScreen, error) {
	if _, err := s.WaitCountAtLeast(ctx, s.resultTitles, 1); err != nil {
		if wait.IsTimeout(err) {
			return nil, screen.ErrNoResults
		}
		return nil, err
	}
	return s.ClickResult(ctx, 0)
}

// ClickResult opens the i-th visible result.
func (s *SearchScreen) ClickResult(ctx context.Context, i int) (*ArticleScreen, error) {
	titles, err := s.FindAll(ctx, s.resultTitles)
	if err != nil {
		return nil, err
	}
	if err := screen.CheckIndex(i, len(titles)); err != nil {
		return nil, err
	}
	s.Logger().Info("Opening search result.", zap.Int("index", i))
	if err := s.Ref(titles[i], fmt.Sprintf("result %d", i)).Click(ctx); err != nil {
		return nil, err
	}
	return openArticle(ctx, s.env)
}

// ClickResultContaining opens the first result whose title contains text,
// ignoring case.
func (s *SearchScreen) ClickResultContaining(ctx context.Context, text string) (*ArticleScreen, error) {
	title, err := s.FindContaining(ctx, s.resultTitles, text)
	if err != nil {
		return nil, err
	}
	s.Logger().Info("Opening search result.", zap.String("matching", text))
	if err := s.Ref(title, fmt.Sprintf("result %q", text)).Click(ctx); err != nil {
		return nil, err
	}
	return openArticle(ctx, s.env)
}

func (s *SearchScreen) IsEmptyViewDisplayed(ctx context.Context) bool {
	return s.IsDisplayed(ctx, s.emptyView)
}

func (s *SearchScreen) IsRecentSearchesDisplayed(ctx context.Context) bool {
	return s.IsDisplayed(ctx, s.recentList)
}

// Search types query and waits for the outcome. An empty query settles on
// the recent searches list instead of results.
func (s *SearchScreen) Search(ctx context.Context, query string) (*SearchScreen, error) {
	s.Logger().Info("Searching.", zap.String("query", query))
	if _, err := s.EnterSearchQuery(ctx, query); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		if _, err := s.WaitVisible(ctx, s.recentList); err != nil {
			return nil, err
		}
		return s, nil
	}
	return s.WaitForSearchResults(ctx)
}

func (s *SearchScreen) AnyResultContains(ctx context.Context, text string) bool {
	titles, err := s.SearchResultTitles(ctx)
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

func (s *SearchScreen) SearchQuery(ctx context.Context) (string, error) {
	return s.ReadText(ctx, s.searchInput)
}

// GoBack leaves search for the main screen. The keyboard is hidden first so
// a single back press is enough.
func (s *SearchScreen) GoBack(ctx context.Context) (*MainScreen, error) {
	s.HideKeyboard(ctx)
	if err := s.Back(ctx); err != nil {
		return nil, err
	}
	return openMain(ctx, s.env)
}

func (s *SearchScreen) DismissKeyboard(ctx context.Context) *SearchScreen {
	s.HideKeyboard(ctx)
	return s
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

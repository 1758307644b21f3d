package scenario

import (
	"context"
	"errors"

	"github.com/xkilldash9x/wikiprobe/internal/launcher"
	"github.com/xkilldash9x/wikiprobe/internal/pages/mobile"
	"github.com/xkilldash9x/wikiprobe/internal/screen"
)

// MobileSuite returns the app scenarios. The app is restarted before every
// case so each one starts from the main screen.
func MobileSuite(q Queries) Suite {
	cases := []Case{
		{Name: "main_screen_loads", Description: "main screen shows the search container", Run: appMainScreenLoads},
		{Name: "navigation_tabs", Description: "explore, saved and search tabs are displayed", Run: appNavigationTabs},
		{Name: "search_opens", Description: "tapping search opens the search screen", Run: appSearchOpens},
		{Name: "search_results", Description: "search for Java programming returns results", Run: appSearchResults},
	}
	for _, query := range q.Mobile {
		cases = append(cases, Case{
			Name:        "search_queries/" + query,
			Description: "search for " + query + " returns results",
			Run: func(ctx context.Context, t *T) error {
				return appSearchQuery(ctx, t, query)
			},
		})
	}
	cases = append(cases,
		Case{Name: "open_article", Description: "first result opens the article", Run: appOpenArticle},
		Case{Name: "article_title_matches", Description: "article title matches the tapped result", Run: appArticleTitleMatches},
		Case{Name: "article_toolbar", Description: "article toolbar is displayed", Run: appArticleToolbar},
		Case{Name: "article_scroll", Description: "article stays loaded while scrolling", Run: appArticleScroll},
		Case{Name: "back_navigation", Description: "back from an article returns to search", Run: appBackNavigation},
		Case{Name: "toolbar_search", Description: "article toolbar search opens the search screen", Run: appToolbarSearch},
		Case{Name: "result_keyword", Description: "first result for Solar System has a title", Run: appResultKeyword},
		Case{Name: "multiple_articles", Description: "open Physics, go back, then open Chemistry", Run: appMultipleArticles},
		Case{Name: "save_button", Description: "article offers the save button", Run: appSaveButton},
		Case{Name: "table_of_contents", Description: "contents drawer lists sections and jumps to one", Run: appTableOfContents},
		Case{Name: "empty_search", Description: "empty query shows recent searches and no results", Run: appEmptySearch},
	)
	return Suite{Name: "mobile", Kind: launcher.KindMobile, setUp: restartApp, Cases: cases}
}

func restartApp(ctx context.Context, t *T) error {
	if t.mgr == nil || t.sess == nil {
		return nil
	}
	return t.mgr.RestartApp(ctx, t.sess)
}

func appMain(ctx context.Context, t *T) (*mobile.MainScreen, error) {
	return mobile.NewMainScreen(t.Mobile).WaitForMainScreen(ctx)
}

func appSearch(ctx context.Context, t *T, query string) (*mobile.SearchScreen, error) {
	main, err := appMain(ctx, t)
	if err != nil {
		return nil, err
	}
	search, err := main.ClickSearch(ctx)
	if err != nil {
		return nil, err
	}
	return search.Search(ctx, query)
}

func appArticle(ctx context.Context, t *T, query string) (*mobile.SearchScreen, *mobile.ArticleScreen, error) {
	search, err := appSearch(ctx, t, query)
	if err != nil {
		return nil, nil, err
	}
	article, err := search.ClickFirstResult(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, err := article.WaitForArticleToLoad(ctx); err != nil {
		return nil, nil, err
	}
	return search, article, expect(article.IsArticleLoaded(ctx), "article for %q should be loaded", query)
}

func appMainScreenLoads(ctx context.Context, t *T) error {
	main, err := appMain(ctx, t)
	if err != nil {
		return err
	}
	return expect(main.IsMainScreenLoaded(ctx), "main screen should be loaded with the search container")
}

func appNavigationTabs(ctx context.Context, t *T) error {
	main, err := appMain(ctx, t)
	if err != nil {
		return err
	}
	return all(
		expect(main.IsExploreTabDisplayed(ctx), "explore tab should be displayed"),
		expect(main.IsSavedTabDisplayed(ctx), "saved tab should be displayed"),
		expect(main.IsSearchTabDisplayed(ctx), "search tab should be displayed"),
	)
}

func appSearchOpens(ctx context.Context, t *T) error {
	main, err := appMain(ctx, t)
	if err != nil {
		return err
	}
	search, err := main.ClickSearch(ctx)
	if err != nil {
		return err
	}
	return expect(search.IsSearchScreenLoaded(ctx), "search screen should be loaded")
}

func appSearchResults(ctx context.Context, t *T) error {
	search, err := appSearch(ctx, t, "Java programming")
	if err != nil {
		return err
	}
	n := search.SearchResultsCount(ctx)
	return all(
		expect(search.HasSearchResults(ctx), "search should return results for Java programming"),
		expect(n > 0, "expected at least one result, found %d", n),
	)
}

func appSearchQuery(ctx context.Context, t *T, query string) error {
	search, err := appSearch(ctx, t, query)
	if err != nil {
		return err
	}
	return expect(search.HasSearchResults(ctx), "search should return results for %q", query)
}

func appOpenArticle(ctx context.Context, t *T) error {
	_, article, err := appArticle(ctx, t, "Albert Einstein")
	if err != nil {
		return err
	}
	return expect(article.IsArticleTitleDisplayed(ctx), "article title should be displayed")
}

func appArticleTitleMatches(ctx context.Context, t *T) error {
	search, err := appSearch(ctx, t, "Python programming language")
	if err != nil {
		return err
	}
	first, err := search.FirstResultTitle(ctx)
	if err != nil {
		return err
	}
	article, err := search.ClickFirstResult(ctx)
	if err != nil {
		return err
	}
	if _, err := article.WaitForArticleToLoad(ctx); err != nil {
		return err
	}
	return all(
		expect(article.IsArticleLoaded(ctx), "article should be loaded"),
		expect(article.IsTitleMatch(ctx, first), "article title %q should match result %q", article.ArticleTitle(ctx), first),
	)
}

func appArticleToolbar(ctx context.Context, t *T) error {
	_, article, err := appArticle(ctx, t, "Machine learning")
	if err != nil {
		return err
	}
	return expect(article.IsToolbarDisplayed(ctx), "article toolbar should be displayed")
}

func appArticleScroll(ctx context.Context, t *T) error {
	_, article, err := appArticle(ctx, t, "World War II")
	if err != nil {
		return err
	}
	for range 2 {
		if err := article.ScrollArticleDown(ctx); err != nil {
			return err
		}
	}
	return expect(article.IsArticleLoaded(ctx), "article should still be loaded after scrolling")
}

func appBackNavigation(ctx context.Context, t *T) error {
	search, article, err := appArticle(ctx, t, "Computer science")
	if err != nil {
		return err
	}
	if err := article.GoBack(ctx); err != nil {
		return err
	}
	main := mobile.NewMainScreen(t.Mobile)
	return expect(search.IsSearchScreenLoaded(ctx) || main.IsMainScreenLoaded(ctx), "back should return to search or main")
}

func appToolbarSearch(ctx context.Context, t *T) error {
	_, article, err := appArticle(ctx, t, "Mathematics")
	if err != nil {
		return err
	}
	search, err := article.ClickToolbarSearch(ctx)
	if err != nil {
		return err
	}
	return expect(search.IsSearchScreenLoaded(ctx), "search should open from the article toolbar")
}

func appResultKeyword(ctx context.Context, t *T) error {
	search, err := appSearch(ctx, t, "Solar System")
	if err != nil {
		return err
	}
	if err := expect(search.HasSearchResults(ctx), "should have search results"); err != nil {
		return err
	}
	first, err := search.FirstResultTitle(ctx)
	if err != nil {
		return err
	}
	return expect(first != "", "first result title should not be empty")
}

func appMultipleArticles(ctx context.Context, t *T) error {
	search, article, err := appArticle(ctx, t, "Physics")
	if err != nil {
		return err
	}
	if err := article.GoBack(ctx); err != nil {
		return err
	}
	if _, err := search.WaitForSearchScreen(ctx); err != nil {
		return err
	}
	if _, err := search.ClearSearch(ctx); err != nil {
		return err
	}
	if _, err := search.Search(ctx, "Chemistry"); err != nil {
		return err
	}
	second, err := search.ClickFirstResult(ctx)
	if err != nil {
		return err
	}
	if _, err := second.WaitForArticleToLoad(ctx); err != nil {
		return err
	}
	return all(
		expect(second.IsArticleLoaded(ctx), "second article should load"),
		expect(second.TitleContains(ctx, "Chemistry"), "second article should be Chemistry, got %q", second.ArticleTitle(ctx)),
	)
}

func appSaveButton(ctx context.Context, t *T) error {
	_, article, err := appArticle(ctx, t, "History")
	if err != nil {
		return err
	}
	return expect(article.IsSaveButtonDisplayed(ctx), "save button should be displayed")
}

func appTableOfContents(ctx context.Context, t *T) error {
	_, article, err := appArticle(ctx, t, "Albert Einstein")
	if err != nil {
		return err
	}
	if _, err := article.OpenTableOfContents(ctx); err != nil {
		return err
	}
	n := article.TOCItemsCount(ctx)
	if err := expect(n > 0, "contents should list sections"); err != nil {
		return err
	}
	_, err = article.ClickTOCItem(ctx, n+10)
	if err := expect(errors.Is(err, screen.ErrIndexOutOfBounds), "an entry past the end should be out of bounds, got %v", err); err != nil {
		return err
	}
	if _, err := article.ClickTOCItem(ctx, 0); err != nil {
		return err
	}
	return expect(!article.IsTableOfContentsDisplayed(ctx), "contents should close after jumping")
}

func appEmptySearch(ctx context.Context, t *T) error {
	search, err := appSearch(ctx, t, "")
	if err != nil {
		return err
	}
	_, clickErr := search.ClickFirstResult(ctx)
	return all(
		expect(!search.HasSearchResults(ctx), "empty query should have no results"),
		expect(search.IsRecentSearchesDisplayed(ctx), "recent searches should be displayed"),
		expect(errors.Is(clickErr, screen.ErrNoResults), "opening a result should fail with no results, got %v", clickErr),
	)
}

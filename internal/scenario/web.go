package scenario

import (
	"context"
	"errors"
	"strings"

	"github.com/xkilldash9x/wikiprobe/internal/launcher"
	"github.com/xkilldash9x/wikiprobe/internal/pages/web"
	"github.com/xkilldash9x/wikiprobe/internal/screen"
)

// WebSuite returns the website scenarios. The data-driven case expands to
// one case per query in q.Web.
func WebSuite(q Queries) Suite {
	cases := []Case{
		{Name: "home_page_loads", Description: "portal loads with logo, search box and language links", Run: webHomePageLoads},
		{Name: "home_language_links", Description: "portal lists at least five featured languages", Run: webHomeLanguageLinks},
		{Name: "portal_search", Description: "search from the portal reaches results or an article", Run: webPortalSearch},
		{Name: "english_search", Description: "search from the English main page shows results", Run: webEnglishSearch},
	}
	for _, query := range q.Web {
		cases = append(cases, Case{
			Name:        "search_queries/" + query,
			Description: "search for " + query + " returns results",
			Run: func(ctx context.Context, t *T) error {
				return webSearchQuery(ctx, t, query)
			},
		})
	}
	cases = append(cases,
		Case{Name: "navigate_to_english", Description: "portal English link opens en.wikipedia.org", Run: webNavigateToEnglish},
		Case{Name: "other_languages", Description: "portal language links open their main pages", Run: webOtherLanguages},
		Case{Name: "random_article", Description: "random article link opens an article", Run: webRandomArticle},
		Case{Name: "open_article", Description: "first result opens a titled article with references", Run: webOpenArticle},
		Case{Name: "article_content", Description: "article has a first paragraph", Run: webArticleContent},
		Case{Name: "article_url", Description: "article URL carries the article name", Run: webArticleURL},
		Case{Name: "article_structure", Description: "article has contents, infobox, references and categories", Run: webArticleStructure},
		Case{Name: "toc_navigation", Description: "contents entry jumps to its section", Run: webTOCNavigation},
		Case{Name: "search_from_article", Description: "article header search opens results", Run: webSearchFromArticle},
		Case{Name: "english_sections", Description: "English main page shows its sections", Run: webEnglishSections},
		Case{Name: "no_results", Description: "nonsense query shows the no-results message", Run: webNoResults},
		Case{Name: "results_pagination", Description: "results page forward and back", Run: webResultsPagination},
		Case{Name: "search_box_roundtrip", Description: "typed query reads back unchanged", Run: webSearchRoundTrip},
		Case{Name: "page_titles", Description: "portal and English titles mention Wikipedia", Run: webPageTitles},
	)
	return Suite{Name: "web", Kind: launcher.KindWeb, Cases: cases}
}

func webHome(ctx context.Context, t *T) (*web.HomePage, error) {
	return web.NewHomePage(t.Web).Open(ctx)
}

func webEnglish(ctx context.Context, t *T) (*web.EnglishHomePage, error) {
	return web.NewEnglishHomePage(t.Web).Open(ctx)
}

func webArticleFromSearch(ctx context.Context, t *T, query string) (*web.ArticlePage, error) {
	english, err := webEnglish(ctx, t)
	if err != nil {
		return nil, err
	}
	results, err := english.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	article, err := results.ClickFirstResult(ctx)
	if err != nil {
		return nil, err
	}
	return article, expect(article.IsPageLoaded(ctx), "article for %q did not load", query)
}

func webHomePageLoads(ctx context.Context, t *T) error {
	home, err := webHome(ctx, t)
	if err != nil {
		return err
	}
	return all(
		expect(home.IsPageLoaded(ctx), "main page should be loaded"),
		expect(home.IsLogoDisplayed(ctx), "logo should be displayed"),
		expect(home.IsSearchInputDisplayed(ctx), "search input should be displayed"),
		expect(home.IsEnglishLinkDisplayed(ctx), "English link should be displayed"),
		expect(home.IsRussianLinkDisplayed(ctx), "Russian link should be displayed"),
	)
}

func webHomeLanguageLinks(ctx context.Context, t *T) error {
	home, err := webHome(ctx, t)
	if err != nil {
		return err
	}
	n := home.FeaturedLanguageCount(ctx)
	return expect(n >= 5, "expected at least 5 featured languages, found %d", n)
}

func webPortalSearch(ctx context.Context, t *T) error {
	home, err := webHome(ctx, t)
	if err != nil {
		return err
	}
	results, err := home.Search(ctx, "Java programming")
	if err != nil {
		return err
	}
	return expect(results.HasResults(ctx) || results.IsPageLoaded(ctx), "search should return results")
}

func webEnglishSearch(ctx context.Context, t *T) error {
	english, err := webEnglish(ctx, t)
	if err != nil {
		return err
	}
	results, err := english.Search(ctx, "Albert Einstein")
	if err != nil {
		return err
	}
	return all(
		expect(results.IsPageLoaded(ctx), "results page should load"),
		expect(results.AnyResultContains(ctx, "Einstein"), "a result should mention Einstein"),
	)
}

func webSearchQuery(ctx context.Context, t *T, query string) error {
	english, err := webEnglish(ctx, t)
	if err != nil {
		return err
	}
	results, err := english.Search(ctx, query)
	if err != nil {
		return err
	}
	return all(
		expect(results.IsPageLoaded(ctx), "results for %q should load", query),
		expect(results.HasResults(ctx), "search for %q should return results", query),
	)
}

func webNavigateToEnglish(ctx context.Context, t *T) error {
	home, err := webHome(ctx, t)
	if err != nil {
		return err
	}
	english, err := home.ClickEnglish(ctx)
	if err != nil {
		return err
	}
	url, err := t.Session.CurrentURL(ctx)
	if err != nil {
		return err
	}
	title, err := t.Session.Title(ctx)
	if err != nil {
		return err
	}
	return all(
		expect(english.IsPageLoaded(ctx), "English main page should load"),
		expect(strings.Contains(url, "en.wikipedia.org"), "URL %q should contain en.wikipedia.org", url),
		expect(strings.Contains(title, "Wikipedia"), "title %q should contain Wikipedia", title),
	)
}

func webOtherLanguages(ctx context.Context, t *T) error {
	clicks := []struct {
		code  string
		click func(*web.HomePage, context.Context) (*web.LanguageHomePage, error)
	}{
		{"ru", (*web.HomePage).ClickRussian},
		{"de", (*web.HomePage).ClickGerman},
		{"fr", (*web.HomePage).ClickFrench},
		{"es", (*web.HomePage).ClickSpanish},
	}
	for _, c := range clicks {
		home, err := webHome(ctx, t)
		if err != nil {
			return err
		}
		page, err := c.click(home, ctx)
		if err != nil {
			return err
		}
		if err := all(
			expect(page.Code() == c.code, "expected the %s main page, got %s", c.code, page.Code()),
			expect(page.IsPageLoaded(ctx), "%s main page should load", c.code),
		); err != nil {
			return err
		}
	}
	return nil
}

func webRandomArticle(ctx context.Context, t *T) error {
	english, err := webEnglish(ctx, t)
	if err != nil {
		return err
	}
	article, err := english.ClickRandomArticle(ctx)
	if err != nil {
		return err
	}
	title, err := article.ArticleTitle(ctx)
	if err != nil {
		return err
	}
	return all(
		expect(article.IsPageLoaded(ctx), "random article should load"),
		expect(title != "", "article should have a title"),
	)
}

func webOpenArticle(ctx context.Context, t *T) error {
	article, err := webArticleFromSearch(ctx, t, "Albert Einstein")
	if err != nil {
		return err
	}
	title, err := article.ArticleTitle(ctx)
	if err != nil {
		return err
	}
	return all(
		expect(title != "", "article should have a non-empty title"),
		expect(article.TitleContains(ctx, "Einstein"), "title %q should mention Einstein", title),
		expect(article.HasReferences(ctx), "article should have references"),
	)
}

func webArticleContent(ctx context.Context, t *T) error {
	article, err := webArticleFromSearch(ctx, t, "Python programming")
	if err != nil {
		return err
	}
	first, err := article.FirstParagraphText(ctx)
	if err != nil {
		return err
	}
	return expect(first != "", "article should have a first paragraph")
}

func webArticleURL(ctx context.Context, t *T) error {
	article, err := webArticleFromSearch(ctx, t, "Machine learning")
	if err != nil {
		return err
	}
	url, err := article.ArticleURL(ctx)
	if err != nil {
		return err
	}
	return all(
		expect(strings.Contains(url, "wiki/"), "article URL %q should contain wiki/", url),
		expect(article.URLContainsArticleName(ctx, "Machine learning"), "article URL %q should name the article", url),
	)
}

func webArticleStructure(ctx context.Context, t *T) error {
	article, err := webArticleFromSearch(ctx, t, "Computer science")
	if err != nil {
		return err
	}
	if err := expect(article.HasTableOfContents(ctx), "article should have a table of contents"); err != nil {
		return err
	}
	if err := article.ScrollToBottom(ctx); err != nil {
		return err
	}
	if err := expect(article.HasCategories(ctx), "article should have categories"); err != nil {
		return err
	}

	einstein, err := web.NewArticlePage(t.Web).Open(ctx, "Albert Einstein")
	if err != nil {
		return err
	}
	return all(
		expect(einstein.HasInfobox(ctx), "biography should have an infobox"),
		expect(einstein.ReferencesCount(ctx) > 0, "biography should have references"),
		expect(einstein.SectionHeadingsCount(ctx) > 0, "biography should have section headings"),
	)
}

func webTOCNavigation(ctx context.Context, t *T) error {
	article, err := web.NewArticlePage(t.Web).Open(ctx, "Albert Einstein")
	if err != nil {
		return err
	}
	names, err := article.TOCSectionNames(ctx)
	if err != nil {
		return err
	}
	if err := expect(len(names) > 1, "expected several contents entries, found %d", len(names)); err != nil {
		return err
	}
	target := names[len(names)-1]
	if _, err := article.ClickTOCSection(ctx, target); err != nil {
		return err
	}
	url, err := t.Session.CurrentURL(ctx)
	if err != nil {
		return err
	}
	return all(
		expect(strings.Contains(url, "#"), "URL %q should carry the section anchor", url),
		expect(article.IsPageLoaded(ctx), "article should stay loaded"),
	)
}

func webSearchFromArticle(ctx context.Context, t *T) error {
	article, err := webArticleFromSearch(ctx, t, "Mathematics")
	if err != nil {
		return err
	}
	results, err := article.Search(ctx, "Physics")
	if err != nil {
		return err
	}
	return expect(results.IsPageLoaded(ctx), "search from an article should work")
}

func webEnglishSections(ctx context.Context, t *T) error {
	english, err := webEnglish(ctx, t)
	if err != nil {
		return err
	}
	return all(
		expect(english.IsPageLoaded(ctx), "English main page should load"),
		expect(english.IsLogoDisplayed(ctx), "logo should be displayed"),
		expect(english.IsSearchInputDisplayed(ctx), "search input should be displayed"),
		expect(english.IsFeaturedArticleDisplayed(ctx), "featured article should be displayed"),
		expect(english.IsDidYouKnowDisplayed(ctx), "did you know should be displayed"),
		expect(english.IsInTheNewsDisplayed(ctx), "in the news should be displayed"),
	)
}

func webNoResults(ctx context.Context, t *T) error {
	english, err := webEnglish(ctx, t)
	if err != nil {
		return err
	}
	results, err := english.Search(ctx, "xyzzyqwertyplugh")
	if err != nil {
		return err
	}
	_, clickErr := results.ClickFirstResult(ctx)
	return all(
		expect(!results.HasResults(ctx), "nonsense query should have no results"),
		expect(results.ResultsCount(ctx) == 0, "result count should be 0"),
		expect(results.IsNoResultsMessageDisplayed(ctx), "no-results message should be displayed"),
		expect(errors.Is(clickErr, screen.ErrNoResults), "opening a result should fail with no results, got %v", clickErr),
	)
}

func webResultsPagination(ctx context.Context, t *T) error {
	english, err := webEnglish(ctx, t)
	if err != nil {
		return err
	}
	results, err := english.Search(ctx, "physics")
	if err != nil {
		return err
	}
	if err := expect(results.HasNextPage(ctx), "broad query should have a next page"); err != nil {
		return err
	}
	first, err := results.ResultTitles(ctx)
	if err != nil {
		return err
	}
	next, err := results.ClickNextPage(ctx)
	if err != nil {
		return err
	}
	if err := expect(next.HasPreviousPage(ctx), "second page should link back"); err != nil {
		return err
	}
	prev, err := next.ClickPreviousPage(ctx)
	if err != nil {
		return err
	}
	again, err := prev.ResultTitles(ctx)
	if err != nil {
		return err
	}
	return expect(strings.Join(first, "\n") == strings.Join(again, "\n"), "first page changed after paging back")
}

func webSearchRoundTrip(ctx context.Context, t *T) error {
	home, err := webHome(ctx, t)
	if err != nil {
		return err
	}
	const query = "Quantum mechanics"
	if err := home.EnterSearchQuery(ctx, query); err != nil {
		return err
	}
	got, err := home.SearchQuery(ctx)
	if err != nil {
		return err
	}
	return expect(got == query, "search box holds %q, want %q", got, query)
}

func webPageTitles(ctx context.Context, t *T) error {
	if _, err := webHome(ctx, t); err != nil {
		return err
	}
	portal, err := t.Session.Title(ctx)
	if err != nil {
		return err
	}
	if _, err := webEnglish(ctx, t); err != nil {
		return err
	}
	english, err := t.Session.Title(ctx)
	if err != nil {
		return err
	}
	return all(
		expect(strings.Contains(portal, "Wikipedia"), "portal title %q should contain Wikipedia", portal),
		expect(strings.Contains(english, "Wikipedia"), "English title %q should contain Wikipedia", english),
	)
}

package web

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/driver/sim"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
	"github.com/xkilldash9x/wikiprobe/internal/screen"
	"github.com/xkilldash9x/wikiprobe/internal/wait"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("k8s.io/klog/v2.(*flushDaemon).run.func1"),
	)
}

func newTestEnv(t *testing.T, opts sim.Options) (Env, *sim.WebSession) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	opts.Logger = logger
	s, err := sim.NewWebSession(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return Env{
		Session:    s,
		Poller:     wait.NewPoller(wait.Spec{Timeout: 2 * time.Second, Interval: 10 * time.Millisecond}, wait.WithLogger(logger)),
		Logger:     logger,
		PortalURL:  "https://www.wikipedia.org",
		EnglishURL: "https://en.wikipedia.org/wiki/Main_Page",
	}, s
}

func openHome(t *testing.T, env Env) *HomePage {
	t.Helper()
	home, err := NewHomePage(env).Open(context.Background())
	require.NoError(t, err)
	return home
}

func TestHomePage(t *testing.T) {
	ctx := context.Background()
	env, _ := newTestEnv(t, sim.Options{})
	home := openHome(t, env)

	assert.True(t, home.IsPageLoaded(ctx))
	assert.True(t, home.IsLogoDisplayed(ctx))
	assert.True(t, home.IsSearchInputDisplayed(ctx))
	assert.True(t, home.IsEnglishLinkDisplayed(ctx))
	assert.True(t, home.IsRussianLinkDisplayed(ctx))
	assert.Equal(t, len(sim.PortalLanguages), home.FeaturedLanguageCount(ctx))

	placeholder, err := home.SearchPlaceholder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Search Wikipedia", placeholder)

	t.Run("search query round trip", func(t *testing.T) {
		require.NoError(t, home.EnterSearchQuery(ctx, "Quantum mechanics"))
		got, err := home.SearchQuery(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Quantum mechanics", got)
	})

	t.Run("suggestions", func(t *testing.T) {
		require.NoError(t, home.EnterSearchQuery(ctx, "Pyth"))
		suggestions, err := home.SearchSuggestions(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, suggestions)
		assert.Contains(t, suggestions, "Python (programming language)")
	})

	t.Run("no suggestions", func(t *testing.T) {
		require.NoError(t, home.EnterSearchQuery(ctx, "xyzzyqwerty"))
		_, err := home.ClickFirstSuggestion(ctx)
		assert.ErrorIs(t, err, screen.ErrNoSuggestions)
	})

	t.Run("search language", func(t *testing.T) {
		require.NoError(t, home.SelectSearchLanguage(ctx, "de"))
		got, err := home.SelectedSearchLanguage(ctx)
		require.NoError(t, err)
		assert.Equal(t, "de", got)

		assert.ErrorIs(t, home.SelectSearchLanguage(ctx, "tlh"), driver.ErrNoSuchElement)
		got, err = home.SelectedSearchLanguage(ctx)
		require.NoError(t, err)
		assert.Equal(t, "de", got, "a failed selection keeps the previous choice")
	})
}

func TestHomePageLanguages(t *testing.T) {
	ctx := context.Background()
	env, _ := newTestEnv(t, sim.Options{})

	english, err := openHome(t, env).ClickEnglish(ctx)
	require.NoError(t, err)
	assert.True(t, english.IsPageLoaded(ctx))
	assert.True(t, english.IsFeaturedArticleDisplayed(ctx))
	assert.True(t, english.IsDidYouKnowDisplayed(ctx))
	assert.True(t, english.IsInTheNewsDisplayed(ctx))
	assert.True(t, english.IsTopBannerDisplayed(ctx))

	cases := []struct {
		name    string
		click   func(*HomePage, context.Context) (*LanguageHomePage, error)
		code    string
		heading string
	}{
		{"russian", (*HomePage).ClickRussian, "ru", "Заглавная страница"},
		{"german", (*HomePage).ClickGerman, "de", "Wikipedia:Hauptseite"},
		{"french", (*HomePage).ClickFrench, "fr", "Wikipédia:Accueil principal"},
		{"spanish", (*HomePage).ClickSpanish, "es", "Wikipedia:Portada"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := tc.click(openHome(t, env), ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.code, page.Code())
			assert.True(t, page.IsPageLoaded(ctx))
			heading, err := page.Heading(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.heading, heading)
		})
	}
}

func TestSearchResultsPage(t *testing.T) {
	ctx := context.Background()
	env, _ := newTestEnv(t, sim.Options{})

	t.Run("empty query is a valid state", func(t *testing.T) {
		results, err := openHome(t, env).Search(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 0, results.ResultsCount(ctx))
		assert.False(t, results.HasResults(ctx))
		_, err = results.ClickFirstResult(ctx)
		assert.ErrorIs(t, err, screen.ErrNoResults)
	})

	t.Run("no matches shows the message", func(t *testing.T) {
		results, err := openHome(t, env).Search(ctx, "xyzzyqwerty")
		require.NoError(t, err)
		assert.False(t, results.HasResults(ctx))
		assert.True(t, results.IsNoResultsMessageDisplayed(ctx))
		_, err = results.FirstResultTitle(ctx)
		assert.ErrorIs(t, err, screen.ErrNoResults)
	})

	t.Run("known query opens the article", func(t *testing.T) {
		results, err := openHome(t, env).Search(ctx, "Albert Einstein")
		require.NoError(t, err)
		assert.True(t, results.IsPageLoaded(ctx))
		assert.Positive(t, results.ResultsCount(ctx))
		assert.True(t, results.AnyResultContains(ctx, "einstein"))

		first, err := results.FirstResultTitle(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Albert Einstein", first)

		article, err := results.ClickFirstResult(ctx)
		require.NoError(t, err)
		assert.True(t, article.IsPageLoaded(ctx))
		assert.True(t, article.IsTitleMatch(ctx, "albert einstein"))
	})

	t.Run("out of range index", func(t *testing.T) {
		results, err := openHome(t, env).Search(ctx, "Albert Einstein")
		require.NoError(t, err)
		n := results.ResultsCount(ctx)

		_, err = results.ClickResult(ctx, 99)
		require.ErrorIs(t, err, screen.ErrIndexOutOfBounds)
		var ie *screen.IndexError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, 99, ie.Index)
		assert.Equal(t, n, ie.Size)

		_, err = results.ClickResult(ctx, -1)
		assert.ErrorIs(t, err, screen.ErrIndexOutOfBounds)
	})

	t.Run("repeated search is stable", func(t *testing.T) {
		english, err := NewEnglishHomePage(env).Open(ctx)
		require.NoError(t, err)
		first, err := english.Search(ctx, "physics")
		require.NoError(t, err)
		second, err := first.Search(ctx, "physics")
		require.NoError(t, err)
		assert.Equal(t, first.ResultsCount(ctx), second.ResultsCount(ctx))

		q, err := second.SearchQuery(ctx)
		require.NoError(t, err)
		assert.Equal(t, "physics", q)
	})

	t.Run("result containing text", func(t *testing.T) {
		results, err := openHome(t, env).Search(ctx, "python")
		require.NoError(t, err)
		article, err := results.ClickResultContaining(ctx, "Python (prog")
		require.NoError(t, err)
		assert.True(t, article.TitleContains(ctx, "Python"))

		results, err = openHome(t, env).Search(ctx, "python")
		require.NoError(t, err)
		_, err = results.ClickResultContaining(ctx, "no such title")
		assert.ErrorIs(t, err, screen.ErrResultNotFound)
	})
}

func TestSearchResultsPaging(t *testing.T) {
	ctx := context.Background()
	env, _ := newTestEnv(t, sim.Options{PageSize: 3})

	results, err := openHome(t, env).Search(ctx, "physics")
	require.NoError(t, err)
	assert.Equal(t, 3, results.ResultsCount(ctx))
	assert.False(t, results.HasPreviousPage(ctx))
	require.True(t, results.HasNextPage(ctx))

	firstPage, err := results.ResultTitles(ctx)
	require.NoError(t, err)

	next, err := results.ClickNextPage(ctx)
	require.NoError(t, err)
	assert.True(t, next.HasPreviousPage(ctx))
	secondPage, err := next.ResultTitles(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, firstPage, secondPage)

	prev, err := next.ClickPreviousPage(ctx)
	require.NoError(t, err)
	again, err := prev.ResultTitles(ctx)
	require.NoError(t, err)
	assert.Equal(t, firstPage, again)
}

func TestSearchWaitsForAsyncResults(t *testing.T) {
	ctx := context.Background()
	env, _ := newTestEnv(t, sim.Options{Latency: 150 * time.Millisecond})

	start := time.Now()
	results, err := openHome(t, env).Search(ctx, "Albert Einstein")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Positive(t, results.ResultsCount(ctx))
}

func TestCoveredButtonIsNotATimeout(t *testing.T) {
	ctx := context.Background()
	env, s := newTestEnv(t, sim.Options{})
	home := openHome(t, env)
	require.NoError(t, s.Cover(locator.ByCSS("button[type='submit']")))

	require.NoError(t, home.EnterSearchQuery(ctx, "Moscow"))
	_, err := home.ClickSearch(ctx)
	require.ErrorIs(t, err, driver.ErrElementNotInteractable)
	assert.False(t, wait.IsTimeout(err))
}

func TestArticlePage(t *testing.T) {
	ctx := context.Background()
	env, _ := newTestEnv(t, sim.Options{})
	article, err := NewArticlePage(env).Open(ctx, "Albert Einstein")
	require.NoError(t, err)

	title, err := article.ArticleTitle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Albert Einstein", title)
	assert.True(t, article.URLContainsArticleName(ctx, "Albert Einstein"))
	assert.False(t, article.URLContainsArticleName(ctx, "Isaac Newton"))

	para, err := article.FirstParagraphText(ctx)
	require.NoError(t, err)
	assert.Greater(t, len(para), minParagraphLength)
	assert.True(t, article.ContainsText(ctx, "relativity"))

	assert.True(t, article.HasInfobox(ctx))
	assert.True(t, article.HasReferences(ctx))
	assert.True(t, article.HasCategories(ctx))
	assert.True(t, article.HasEditLink(ctx))
	assert.True(t, article.HasLanguageOptions(ctx))
	assert.Positive(t, article.AvailableLanguagesCount(ctx))
	assert.Positive(t, article.ExternalLinksCount(ctx))
	assert.GreaterOrEqual(t, article.SectionHeadingsCount(ctx), 5)

	categories, err := article.Categories(ctx)
	require.NoError(t, err)
	assert.Contains(t, categories, "1879 births")

	t.Run("table of contents", func(t *testing.T) {
		require.True(t, article.HasTableOfContents(ctx))
		names, err := article.TOCSectionNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Early life and education", names[0])

		same, err := article.ClickTOCSection(ctx, "Personal life")
		require.NoError(t, err)
		assert.Same(t, article, same)
		url, err := article.ArticleURL(ctx)
		require.NoError(t, err)
		assert.Contains(t, url, "#Personal_life")

		_, err = article.ClickTOCSection(ctx, "Nonexistent section")
		assert.ErrorIs(t, err, screen.ErrSectionNotFound)
	})

	t.Run("search from the article", func(t *testing.T) {
		results, err := article.Search(ctx, "Moscow")
		require.NoError(t, err)
		assert.True(t, results.AnyResultContains(ctx, "Moscow"))
	})
}

func TestArticleNavigation(t *testing.T) {
	ctx := context.Background()
	env, _ := newTestEnv(t, sim.Options{})
	article, err := NewArticlePage(env).Open(ctx, "Physics")
	require.NoError(t, err)
	assert.False(t, article.HasInfobox(ctx))
	require.NoError(t, article.ScrollToBottom(ctx))

	home, err := article.ClickLogo(ctx)
	require.NoError(t, err)
	assert.True(t, home.IsPageLoaded(ctx))

	random, err := home.ClickRandomArticle(ctx)
	require.NoError(t, err)
	assert.True(t, random.IsPageLoaded(ctx))

	home, err = NewEnglishHomePage(env).Open(ctx)
	require.NoError(t, err)
	contents, err := home.ClickContents(ctx)
	require.NoError(t, err)
	assert.True(t, contents.TitleContains(ctx, "Contents"))

	home, err = NewEnglishHomePage(env).Open(ctx)
	require.NoError(t, err)
	same, err := home.ClickMainPage(ctx)
	require.NoError(t, err)
	assert.Same(t, home, same)

	events, err := home.ClickCurrentEvents(ctx)
	require.NoError(t, err)
	assert.True(t, events.TitleContains(ctx, "Current events"))
}

func TestStripTOCNumber(t *testing.T) {
	assert.Equal(t, "History", stripTOCNumber("1 History"))
	assert.Equal(t, "Later years", stripTOCNumber("2.1 Later years"))
	assert.Equal(t, "History of physics", stripTOCNumber("History of physics"))
	assert.Equal(t, "Legacy", stripTOCNumber("Legacy"))
}

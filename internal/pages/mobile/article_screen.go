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

// ArticleScreen is an article page with its toolbar and action tabs.
type ArticleScreen struct {
	*screen.Base
	env Env

	title           locator.Locator
	webView         locator.Locator
	contents        locator.Locator
	toolbar         locator.Locator
	toolbarSearch   locator.Locator
	toolbarTabs     locator.Locator
	toolbarOverflow locator.Locator
	saveButton      locator.Locator
	tocButton       locator.Locator
	tocList         locator.Locator
	tocItems        locator.Locator
	languageButton  locator.Locator
	navigateUp      locator.Locator
	headerImage     locator.Locator
}

func NewArticleScreen(env Env) *ArticleScreen {
	return &ArticleScreen{
		Base:            env.base("ArticleScreen"),
		env:             env,
		title:           locator.ByID("view_page_title_text"),
		webView:         locator.ByID("page_web_view"),
		contents:        locator.ByID("page_contents_container"),
		toolbar:         locator.ByID("page_toolbar"),
		toolbarSearch:   locator.ByID("page_toolbar_button_search"),
		toolbarTabs:     locator.ByID("page_toolbar_button_tabs"),
		toolbarOverflow: locator.ByID("page_toolbar_button_show_overflow_menu"),
		saveButton:      locator.ByID("page_save"),
		tocButton:       locator.ByID("page_toc_button"),
		tocList:         locator.ByID("page_toc_list"),
		tocItems:        locator.ByID("page_toc_item_text"),
		languageButton:  locator.ByID("page_language"),
		navigateUp:      locator.ByClassName("android.widget.ImageButton"),
		headerImage:     locator.ByID("view_page_header_image"),
	}
}

func openArticle(ctx context.Context, env Env) (*ArticleScreen, error) {
	return NewArticleScreen(env).WaitForArticleToLoad(ctx)
}

// WaitForArticleToLoad waits for the page toolbar or the web view.
func (a *ArticleScreen) WaitForArticleToLoad(ctx context.Context) (*ArticleScreen, error) {
	s := a.Session()
	_, err := a.WaitAny(ctx,
		wait.Bool(wait.ElementVisible(s, a.toolbar)),
		wait.Bool(wait.ElementVisible(s, a.webView)),
	)
	if err != nil {
		return nil, fmt.Errorf("article did not load: %w", err)
	}
	return a, nil
}

func (a *ArticleScreen) IsArticleLoaded(ctx context.Context) bool {
	return a.IsDisplayed(ctx, a.toolbar) || a.IsDisplayed(ctx, a.webView)
}

// ArticleTitle returns the title shown at the top of the article, or "" when
// it cannot be read.
func (a *ArticleScreen) ArticleTitle(ctx context.Context) string {
	title, err := a.ReadText(ctx, a.title)
	if err != nil {
		a.Logger().Debug("Article title not readable.", zap.Error(err))
		return ""
	}
	return title
}

func (a *ArticleScreen) IsArticleTitleDisplayed(ctx context.Context) bool {
	return a.IsDisplayed(ctx, a.title)
}

func (a *ArticleScreen) IsTitleMatch(ctx context.Context, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(a.ArticleTitle(ctx)), strings.TrimSpace(expected))
}

func (a *ArticleScreen) TitleContains(ctx context.Context, text string) bool {
	return containsFold(a.ArticleTitle(ctx), text)
}

func (a *ArticleScreen) OpenTableOfContents(ctx context.Context) (*ArticleScreen, error) {
	if err := a.Click(ctx, a.tocButton); err != nil {
		return nil, err
	}
	if _, err := a.WaitVisible(ctx, a.tocList); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ArticleScreen) IsTableOfContentsDisplayed(ctx context.Context) bool {
	return a.IsDisplayed(ctx, a.tocList)
}

// TOCItemsCount counts the entries of the open table of contents, the
// article title included.
func (a *ArticleScreen) TOCItemsCount(ctx context.Context) int {
	return a.Count(ctx, a.tocItems)
}

// TOCItems returns the entries of the open table of contents.
func (a *ArticleScreen) TOCItems(ctx context.Context) ([]string, error) {
	return a.Texts(ctx, a.tocItems)
}

// ClickTOCItem jumps to the i-th entry of the open table of contents.
func (a *ArticleScreen) ClickTOCItem(ctx context.Context, i int) (*ArticleScreen, error) {
	items, err := a.FindAll(ctx, a.tocItems)
	if err != nil {
		return nil, err
	}
	if err := screen.CheckIndex(i, len(items)); err != nil {
		return nil, err
	}
	if err := a.Ref(items[i], fmt.Sprintf("toc item %d", i)).Click(ctx); err != nil {
		return nil, err
	}
	if err := a.WaitInvisible(ctx, a.tocList); err != nil {
		return nil, err
	}
	return a, nil
}

// CloseTableOfContents dismisses the table of contents with the back key.
func (a *ArticleScreen) CloseTableOfContents(ctx context.Context) (*ArticleScreen, error) {
	if err := a.Back(ctx); err != nil {
		return nil, err
	}
	if err := a.WaitInvisible(ctx, a.tocList); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ArticleScreen) ClickSave(ctx context.Context) (*ArticleScreen, error) {
	if err := a.Click(ctx, a.saveButton); err != nil {
		return nil, err
	}
	return a, nil
}

// SaveLabel returns the text of the save action, "Save" or "Saved".
func (a *ArticleScreen) SaveLabel(ctx context.Context) (string, error) {
	return a.ReadText(ctx, a.saveButton)
}

func (a *ArticleScreen) IsSaveButtonDisplayed(ctx context.Context) bool {
	return a.IsDisplayed(ctx, a.saveButton)
}

func (a *ArticleScreen) ClickLanguageButton(ctx context.Context) (*ArticleScreen, error) {
	if err := a.Click(ctx, a.languageButton); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ArticleScreen) IsLanguageButtonDisplayed(ctx context.Context) bool {
	return a.IsDisplayed(ctx, a.languageButton)
}

func (a *ArticleScreen) ClickToolbarSearch(ctx context.Context) (*SearchScreen, error) {
	if err := a.Click(ctx, a.toolbarSearch); err != nil {
		return nil, err
	}
	return openSearch(ctx, a.env)
}

func (a *ArticleScreen) ClickOverflowMenu(ctx context.Context) (*ArticleScreen, error) {
	if err := a.Click(ctx, a.toolbarOverflow); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ArticleScreen) IsTabsButtonDisplayed(ctx context.Context) bool {
	return a.IsDisplayed(ctx, a.toolbarTabs)
}

// ScrollArticleDown scrolls the article body by about half a screen.
func (a *ArticleScreen) ScrollArticleDown(ctx context.Context) error {
	return a.ScrollBy(ctx, scrollDistance)
}

// HasContent reports whether any of the article body is on screen.
func (a *ArticleScreen) HasContent(ctx context.Context) bool {
	return a.IsDisplayed(ctx, a.contents)
}

func (a *ArticleScreen) HasHeaderImage(ctx context.Context) bool {
	return a.IsDisplayed(ctx, a.headerImage)
}

func (a *ArticleScreen) IsToolbarDisplayed(ctx context.Context) bool {
	return a.IsDisplayed(ctx, a.toolbar)
}

// NavigateUp taps the toolbar's up arrow.
func (a *ArticleScreen) NavigateUp(ctx context.Context) error {
	return a.Click(ctx, a.navigateUp)
}

// GoBack presses the system back key once.
func (a *ArticleScreen) GoBack(ctx context.Context) error {
	return a.Back(ctx)
}

// GoBackToMain presses back twice, through search, to the main screen.
func (a *ArticleScreen) GoBackToMain(ctx context.Context) (*MainScreen, error) {
	for range 2 {
		if err := a.Back(ctx); err != nil {
			return nil, err
		}
	}
	return openMain(ctx, a.env)
}

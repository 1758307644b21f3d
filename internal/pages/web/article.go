package web

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/locator"
	"github.com/xkilldash9x/wikiprobe/internal/screen"
)

// minParagraphLength skips coordinate lines and empty stubs when looking for
// the lead paragraph.
const minParagraphLength = 50

// ArticlePage is any /wiki/ page with a first heading.
type ArticlePage struct {
	*screen.Base
	env Env

	heading         locator.Locator
	content         locator.Locator
	paragraphs      locator.Locator
	toc             locator.Locator
	tocLinks        locator.Locator
	logo            locator.Locator
	searchInput     locator.Locator
	searchButton    locator.Locator
	languageButton  locator.Locator
	languageLinks   locator.Locator
	editLink        locator.Locator
	categoryBox     locator.Locator
	categoryLinks   locator.Locator
	references      locator.Locator
	infobox         locator.Locator
	sectionHeadings locator.Locator
	externalLinks   locator.Locator
}

func NewArticlePage(env Env) *ArticlePage {
	return &ArticlePage{
		Base:            env.base("ArticlePage"),
		env:             env,
		heading:         locator.ByID("firstHeading"),
		content:         locator.ByID("mw-content-text"),
		paragraphs:      locator.ByCSS("#mw-content-text p"),
		toc:             locator.ByID("toc"),
		tocLinks:        locator.ByCSS("#toc ul li a"),
		logo:            locator.ByCSS(".mw-logo"),
		searchInput:     locator.ByName("search"),
		searchButton:    locator.ByCSS("button.cdx-button"),
		languageButton:  locator.ByCSS("#p-lang-btn"),
		languageLinks:   locator.ByCSS(".interlanguage-link a"),
		editLink:        locator.ByCSS("#ca-edit a"),
		categoryBox:     locator.ByID("mw-normal-catlinks"),
		categoryLinks:   locator.ByCSS("#mw-normal-catlinks a"),
		references:      locator.ByCSS(".reference"),
		infobox:         locator.ByCSS(".infobox"),
		sectionHeadings: locator.ByCSS(".mw-heading"),
		externalLinks:   locator.ByCSS(".external"),
	}
}

func openArticle(ctx context.Context, env Env) (*ArticlePage, error) {
	p := NewArticlePage(env)
	if _, err := p.WaitVisible(ctx, p.heading); err != nil {
		return nil, fmt.Errorf("article did not load: %w", err)
	}
	return p, nil
}

// Open navigates straight to the article with the given title.
func (p *ArticlePage) Open(ctx context.Context, title string) (*ArticlePage, error) {
	base, err := url.Parse(p.env.EnglishURL)
	if err != nil {
		return nil, fmt.Errorf("invalid English URL: %w", err)
	}
	target := base.ResolveReference(&url.URL{Path: "/wiki/" + strings.ReplaceAll(title, " ", "_")})
	if err := p.NavigateTo(ctx, target.String()); err != nil {
		return nil, err
	}
	return openArticle(ctx, p.env)
}

func (p *ArticlePage) IsPageLoaded(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.heading) && p.IsDisplayed(ctx, p.content)
}

func (p *ArticlePage) ArticleTitle(ctx context.Context) (string, error) {
	return p.ReadText(ctx, p.heading)
}

// IsTitleMatch compares the heading with expected, ignoring case.
func (p *ArticlePage) IsTitleMatch(ctx context.Context, expected string) bool {
	title, err := p.ArticleTitle(ctx)
	return err == nil && strings.EqualFold(strings.TrimSpace(title), strings.TrimSpace(expected))
}

func (p *ArticlePage) TitleContains(ctx context.Context, text string) bool {
	title, err := p.ArticleTitle(ctx)
	return err == nil && containsFold(title, text)
}

// FirstParagraphText returns the first paragraph long enough to be prose, or
// "" when there is none.
func (p *ArticlePage) FirstParagraphText(ctx context.Context) (string, error) {
	texts, err := p.Texts(ctx, p.paragraphs)
	if err != nil {
		return "", err
	}
	for _, t := range texts {
		if len(strings.TrimSpace(t)) > minParagraphLength {
			return t, nil
		}
	}
	return "", nil
}

func (p *ArticlePage) ContainsText(ctx context.Context, text string) bool {
	body, err := p.ReadText(ctx, p.content)
	return err == nil && strings.Contains(body, text)
}

func (p *ArticlePage) HasTableOfContents(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.toc)
}

// TOCSectionNames returns the section names listed in the table of contents
// without their numbering.
func (p *ArticlePage) TOCSectionNames(ctx context.Context) ([]string, error) {
	texts, err := p.Texts(ctx, p.tocLinks)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(texts))
	for _, t := range texts {
		names = append(names, stripTOCNumber(t))
	}
	return names, nil
}

func stripTOCNumber(s string) string {
	s = strings.TrimSpace(s)
	number, rest, ok := strings.Cut(s, " ")
	if !ok {
		return s
	}
	for _, r := range number {
		if !unicode.IsDigit(r) && r != '.' {
			return s
		}
	}
	return strings.TrimSpace(rest)
}

// ClickTOCSection jumps to the section whose name contains section.
func (p *ArticlePage) ClickTOCSection(ctx context.Context, section string) (*ArticlePage, error) {
	links, err := p.FindAll(ctx, p.tocLinks)
	if err != nil {
		return nil, err
	}
	for i, el := range links {
		text, err := el.Text(ctx)
		if err != nil || !containsFold(stripTOCNumber(text), section) {
			continue
		}
		link := p.Ref(el, fmt.Sprintf("toc entry %d", i))
		href, err := link.Attribute(ctx, "href")
		if err != nil {
			return nil, err
		}
		p.Logger().Info("Jumping to section.", zap.String("section", section))
		if err := link.Click(ctx); err != nil {
			return nil, fmt.Errorf("click toc entry %q: %w", section, err)
		}
		if _, fragment, ok := strings.Cut(href, "#"); ok {
			if err := p.WaitURLContains(ctx, "#"+fragment); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", screen.ErrSectionNotFound, section)
}

func (p *ArticlePage) HasInfobox(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.infobox)
}

func (p *ArticlePage) ReferencesCount(ctx context.Context) int {
	return p.Count(ctx, p.references)
}

func (p *ArticlePage) HasReferences(ctx context.Context) bool {
	return p.ReferencesCount(ctx) > 0
}

func (p *ArticlePage) Categories(ctx context.Context) ([]string, error) {
	return p.Texts(ctx, p.categoryLinks)
}

func (p *ArticlePage) HasCategories(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.categoryBox)
}

func (p *ArticlePage) SectionHeadingsCount(ctx context.Context) int {
	return p.Count(ctx, p.sectionHeadings)
}

func (p *ArticlePage) ExternalLinksCount(ctx context.Context) int {
	return p.Count(ctx, p.externalLinks)
}

func (p *ArticlePage) ScrollToBottom(ctx context.Context) error {
	return p.ScrollToEnd(ctx)
}

func (p *ArticlePage) ClickLogo(ctx context.Context) (*EnglishHomePage, error) {
	err := navigate(ctx, p.Base, func(ctx context.Context) error {
		return p.Click(ctx, p.logo)
	})
	if err != nil {
		return nil, fmt.Errorf("click logo: %w", err)
	}
	return openEnglish(ctx, p.env)
}

func (p *ArticlePage) Search(ctx context.Context, query string) (*SearchResultsPage, error) {
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

func (p *ArticlePage) HasLanguageOptions(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.languageButton)
}

// AvailableLanguagesCount counts the interlanguage links, which are present
// even while the language menu is collapsed.
func (p *ArticlePage) AvailableLanguagesCount(ctx context.Context) int {
	return p.Count(ctx, p.languageLinks)
}

func (p *ArticlePage) HasEditLink(ctx context.Context) bool {
	return p.IsDisplayed(ctx, p.editLink)
}

func (p *ArticlePage) ArticleURL(ctx context.Context) (string, error) {
	return p.CurrentURL(ctx)
}

// URLContainsArticleName compares the URL with the article name in its
// underscored, lower-case form.
func (p *ArticlePage) URLContainsArticleName(ctx context.Context, name string) bool {
	raw, err := p.CurrentURL(ctx)
	if err != nil {
		return false
	}
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	want := strings.ToLower(strings.ReplaceAll(name, " ", "_"))
	return strings.Contains(strings.ToLower(raw), want)
}

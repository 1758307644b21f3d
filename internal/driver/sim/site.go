package sim

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

//go:embed templates/*.html
var templateFS embed.FS

// Language is a portal link target.
type Language struct {
	Code     string
	Name     string
	Articles string
	Rank     int
}

// PortalLanguages are the featured languages around the portal logo.
var PortalLanguages = []Language{
	{Code: "en", Name: "English", Articles: "6,962,000+", Rank: 1},
	{Code: "ru", Name: "Русский", Articles: "2,030,000+", Rank: 2},
	{Code: "ja", Name: "日本語", Articles: "1,450,000+", Rank: 3},
	{Code: "de", Name: "Deutsch", Articles: "2,990,000+", Rank: 4},
	{Code: "fr", Name: "Français", Articles: "2,650,000+", Rank: 5},
	{Code: "es", Name: "Español", Articles: "2,020,000+", Rank: 6},
	{Code: "it", Name: "Italiano", Articles: "1,910,000+", Rank: 7},
	{Code: "zh", Name: "中文", Articles: "1,460,000+", Rank: 8},
	{Code: "pl", Name: "Polski", Articles: "1,650,000+", Rank: 9},
	{Code: "pt", Name: "Português", Articles: "1,140,000+", Rank: 10},
}

var mainPageHeadings = map[string]string{
	"en": "Main Page",
	"ru": "Заглавная страница",
	"ja": "メインページ",
	"de": "Wikipedia:Hauptseite",
	"fr": "Wikipédia:Accueil principal",
	"es": "Wikipedia:Portada",
	"it": "Pagina principale",
	"zh": "Wikipedia:首页",
	"pl": "Wikipedia:Strona główna",
	"pt": "Wikipédia:Página principal",
}

// DefaultPageSize is the number of search results per page.
const DefaultPageSize = 10

// Site renders the offline Wikipedia for every host under wikipedia.org.
type Site struct {
	corpus    *Corpus
	pageSize  int
	templates map[string]*template.Template

	mu     sync.Mutex
	random int
}

// page is the outcome of routing one request.
type page struct {
	url      *url.URL
	html     string
	redirect *url.URL
}

// NewSite parses the page templates over corpus.
func NewSite(corpus *Corpus, pageSize int) (*Site, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	s := &Site{corpus: corpus, pageSize: pageSize, templates: make(map[string]*template.Template)}

	funcs := template.FuncMap{
		"inc":    func(i int) int { return i + 1 },
		"add":    func(a, b int) int { return a + b },
		"anchor": func(s string) string { return strings.ReplaceAll(s, " ", "_") },
		"slug":   func(s string) string { return strings.ReplaceAll(s, " ", "_") },
	}
	for _, name := range []string{"portal", "main", "language", "search", "article", "notfound"} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %q: %w", name, err)
		}
		s.templates[name] = t
	}
	return s, nil
}

// Corpus returns the article collection behind the site.
func (s *Site) Corpus() *Corpus { return s.corpus }

type baseData struct {
	Lang      string
	Title     string
	BodyClass string
	Query     string
}

func (s *Site) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates[name].ExecuteTemplate(&buf, "base", data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

// route resolves u to a page or a redirect.
func (s *Site) route(u *url.URL) (page, error) {
	host := strings.ToLower(u.Hostname())
	if !strings.HasSuffix(host, "wikipedia.org") {
		return s.notFound(u, "en", "Server not found", "The sim backend only serves wikipedia.org.")
	}
	lang := strings.TrimSuffix(strings.TrimSuffix(host, "wikipedia.org"), ".")
	if lang == "" || lang == "www" {
		return s.routePortal(u)
	}

	switch {
	case u.Path == "" || u.Path == "/":
		return s.redirect(u, "/wiki/Main_Page")
	case u.Path == "/w/index.php":
		q := u.Query()
		if q.Has("search") {
			return s.searchPage(u, lang)
		}
		if t := q.Get("title"); t != "" {
			return s.redirect(u, "/wiki/"+t)
		}
		return s.redirect(u, "/wiki/Main_Page")
	case strings.HasPrefix(u.Path, "/wiki/"):
		return s.routeWiki(u, lang, strings.TrimPrefix(u.Path, "/wiki/"))
	}
	return s.notFound(u, lang, "Not Found", "The requested page does not exist.")
}

func (s *Site) routePortal(u *url.URL) (page, error) {
	switch u.Path {
	case "", "/":
		html, err := s.render("portal", struct {
			baseData
			Languages []Language
		}{
			baseData:  baseData{Lang: "en", Title: "Wikipedia", BodyClass: "svg-search-icon"},
			Languages: PortalLanguages,
		})
		return page{url: u, html: html}, err
	case "/search-redirect.php":
		q := u.Query()
		lang := q.Get("language")
		if lang == "" {
			lang = "en"
		}
		target := &url.URL{
			Scheme:   u.Scheme,
			Host:     lang + ".wikipedia.org",
			Path:     "/w/index.php",
			RawQuery: url.Values{"search": {q.Get("search")}, "title": {"Special:Search"}, "fulltext": {"1"}}.Encode(),
		}
		return page{redirect: target}, nil
	}
	return s.notFound(u, "en", "Not Found", "The requested page does not exist.")
}

func (s *Site) routeWiki(u *url.URL, lang, title string) (page, error) {
	title, _ = url.PathUnescape(title)
	switch title {
	case "Main_Page":
		return s.mainPage(u, lang)
	case "Special:Search":
		return s.searchPage(u, lang)
	case "Special:Random":
		s.mu.Lock()
		a := s.corpus.At(s.random)
		s.random++
		s.mu.Unlock()
		return s.redirect(u, "/wiki/"+a.Slug())
	}
	if a, ok := s.corpus.Lookup(title); ok {
		return s.articlePage(u, lang, a)
	}
	name := strings.ReplaceAll(title, "_", " ")
	if strings.Contains(title, ":") {
		return s.notFound(u, lang, name, name+" is a project page.")
	}
	return s.notFound(u, lang, name, "Wikipedia does not have an article with this exact name.")
}

func (s *Site) mainPage(u *url.URL, lang string) (page, error) {
	if lang != "en" {
		heading, ok := mainPageHeadings[lang]
		if !ok {
			heading = "Wikipedia"
		}
		html, err := s.render("language", struct {
			baseData
			Heading      string
			ArticleCount string
		}{
			baseData:     baseData{Lang: lang, Title: heading + " — Wikipedia"},
			Heading:      heading,
			ArticleCount: articleCount(lang),
		})
		return page{url: u, html: html}, err
	}

	n := s.corpus.Len()
	pick := func(from, count int) []Article {
		out := make([]Article, 0, count)
		for i := 0; i < count; i++ {
			out = append(out, s.corpus.At(from+i))
		}
		return out
	}
	html, err := s.render("main", struct {
		baseData
		ArticleCount string
		Featured     Article
		DidYouKnow   []Article
		InTheNews    []Article
	}{
		baseData:     baseData{Lang: "en", Title: "Wikipedia, the free encyclopedia", BodyClass: "page-Main_Page"},
		ArticleCount: strconv.Itoa(n),
		Featured:     s.corpus.At(0),
		DidYouKnow:   pick(1, 4),
		InTheNews:    pick(5, 3),
	})
	return page{url: u, html: html}, err
}

func (s *Site) searchPage(u *url.URL, lang string) (page, error) {
	q := u.Query()
	query := strings.TrimSpace(q.Get("search"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	all := s.corpus.Search(query)
	end := min(offset+s.pageSize, len(all))
	var results []Article
	if offset < len(all) {
		results = all[offset:end]
	}

	pageURL := func(off int) string {
		v := url.Values{"search": {query}, "title": {"Special:Search"}, "fulltext": {"1"}, "offset": {strconv.Itoa(off)}}
		return "/w/index.php?" + v.Encode()
	}
	var prev, next string
	if offset > 0 {
		prev = pageURL(max(offset-s.pageSize, 0))
	}
	if end < len(all) {
		next = pageURL(end)
	}

	title := "Search results - Wikipedia"
	if query != "" {
		title = query + " - " + title
	}
	html, err := s.render("search", struct {
		baseData
		Results            []Article
		First, Last, Total int
		Limit              int
		PrevURL, NextURL   string
	}{
		baseData: baseData{Lang: lang, Title: title, BodyClass: "page-Special_Search", Query: query},
		Results:  results,
		First:    offset + 1,
		Last:     end,
		Total:    len(all),
		Limit:    s.pageSize,
		PrevURL:  prev,
		NextURL:  next,
	})
	return page{url: u, html: html}, err
}

func (s *Site) articlePage(u *url.URL, lang string, a Article) (page, error) {
	langs := make([]Language, 0, a.Languages)
	for _, l := range PortalLanguages[1:] {
		if len(langs) == a.Languages {
			break
		}
		langs = append(langs, l)
	}
	refs := make([]int, a.References)
	for i := range refs {
		refs[i] = i
	}
	html, err := s.render("article", struct {
		baseData
		Article       Article
		Interlanguage []Language
		ReferenceList []int
		References    int
		ShowTOC       bool
	}{
		baseData:      baseData{Lang: lang, Title: a.Title + " - Wikipedia", BodyClass: "page-" + a.Slug()},
		Article:       a,
		Interlanguage: langs,
		ReferenceList: refs,
		References:    a.References,
		ShowTOC:       len(a.Sections) >= 3,
	})
	return page{url: u, html: html}, err
}

func (s *Site) notFound(u *url.URL, lang, heading, message string) (page, error) {
	html, err := s.render("notfound", struct {
		baseData
		Heading, Message string
	}{
		baseData: baseData{Lang: lang, Title: heading + " - Wikipedia"},
		Heading:  heading,
		Message:  message,
	})
	return page{url: u, html: html}, err
}

func (s *Site) redirect(from *url.URL, path string) (page, error) {
	return page{redirect: from.ResolveReference(&url.URL{Path: path})}, nil
}

func articleCount(lang string) string {
	for _, l := range PortalLanguages {
		if l.Code == lang {
			return l.Articles
		}
	}
	return ""
}

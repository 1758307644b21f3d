package sim

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed corpus.yaml
var corpusYAML []byte

// Section is one headed part of an article body.
type Section struct {
	Name string `yaml:"name"`
	Text string `yaml:"text"`
}

// Article is a page of the offline encyclopedia.
type Article struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Paragraphs  []string  `yaml:"paragraphs"`
	Sections    []Section `yaml:"sections"`
	Categories  []string  `yaml:"categories"`
	Languages   int       `yaml:"languages"`
	References  int       `yaml:"references"`
	Infobox     bool      `yaml:"infobox"`
	Image       bool      `yaml:"image"`
}

// Slug is the URL path segment for the article.
func (a Article) Slug() string {
	return strings.ReplaceAll(a.Title, " ", "_")
}

func (a Article) haystack() string {
	var b strings.Builder
	b.WriteString(a.Title)
	b.WriteByte(' ')
	b.WriteString(a.Description)
	for _, p := range a.Paragraphs {
		b.WriteByte(' ')
		b.WriteString(p)
	}
	return strings.ToLower(b.String())
}

// Corpus is an immutable, ordered collection of articles.
type Corpus struct {
	articles []Article
	byTitle  map[string]int
}

type corpusFile struct {
	Articles []Article `yaml:"articles"`
	Stubs    []Article `yaml:"stubs"`
}

// DefaultCorpus parses the embedded corpus.
func DefaultCorpus() (*Corpus, error) {
	return ParseCorpus(corpusYAML)
}

// ParseCorpus reads a corpus in the embedded YAML layout. Stub entries get a
// single paragraph built from their description.
func ParseCorpus(data []byte) (*Corpus, error) {
	var f corpusFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse corpus: %w", err)
	}
	for _, s := range f.Stubs {
		if len(s.Paragraphs) == 0 {
			s.Paragraphs = []string{s.Title + " is a topic: " + strings.ToLower(s.Description) + "."}
		}
		if s.Languages == 0 {
			s.Languages = 1
		}
		f.Articles = append(f.Articles, s)
	}

	c := &Corpus{articles: f.Articles, byTitle: make(map[string]int, len(f.Articles))}
	for i, a := range f.Articles {
		if a.Title == "" {
			return nil, fmt.Errorf("corpus entry %d has no title", i)
		}
		key := strings.ToLower(a.Title)
		if _, dup := c.byTitle[key]; dup {
			return nil, fmt.Errorf("duplicate corpus title %q", a.Title)
		}
		c.byTitle[key] = i
	}
	return c, nil
}

// Len returns the number of articles.
func (c *Corpus) Len() int { return len(c.articles) }

// Lookup finds an article by title or slug, case-insensitively.
func (c *Corpus) Lookup(title string) (Article, bool) {
	i, ok := c.byTitle[strings.ToLower(strings.ReplaceAll(title, "_", " "))]
	if !ok {
		return Article{}, false
	}
	return c.articles[i], true
}

// At returns the article at position i modulo the corpus size.
func (c *Corpus) At(i int) Article {
	if i < 0 {
		i = -i
	}
	return c.articles[i%len(c.articles)]
}

// Search returns every article containing all words of query, ranked exact
// title first, then title matches, then body matches, each in corpus order.
// A blank query matches nothing.
func (c *Corpus) Search(query string) []Article {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}
	q := strings.Join(terms, " ")

	type hit struct {
		rank, order int
	}
	var hits []hit
	for i, a := range c.articles {
		text := a.haystack()
		matched := true
		for _, t := range terms {
			if !strings.Contains(text, t) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		title := strings.ToLower(a.Title)
		rank := 2
		switch {
		case title == q:
			rank = 0
		case strings.Contains(title, q):
			rank = 1
		}
		hits = append(hits, hit{rank: rank, order: i})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].rank < hits[j].rank })

	out := make([]Article, len(hits))
	for i, h := range hits {
		out[i] = c.articles[h.order]
	}
	return out
}

// Suggest returns up to n titles starting with prefix, case-insensitively.
func (c *Corpus) Suggest(prefix string, n int) []string {
	p := strings.ToLower(strings.TrimSpace(prefix))
	if p == "" {
		return nil
	}
	var out []string
	for _, a := range c.articles {
		if strings.HasPrefix(strings.ToLower(a.Title), p) {
			out = append(out, a.Title)
			if len(out) == n {
				break
			}
		}
	}
	return out
}

package sim

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

const (
	maxRedirects = 10
	asyncAttr    = "data-async"
	coveredAttr  = "data-covered"
	maxSuggested = 6
)

// WebSession is a simulated browser tab on the offline Wikipedia site.
// The DOM is stateful across interactions until the next navigation.
type WebSession struct {
	site   *Site
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	currentURL *url.URL
	currentDOM *html.Node
	history    []*url.URL
	generation uint64
	scrollY    int
	closed     bool
}

var (
	_ driver.Session  = (*WebSession)(nil)
	_ driver.Scroller = (*WebSession)(nil)
)

// NewWebSession returns a session on about:blank.
func NewWebSession(opts Options) (*WebSession, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	site, err := NewSite(opts.Corpus, opts.PageSize)
	if err != nil {
		return nil, err
	}
	doc, _ := htmlquery.Parse(strings.NewReader("<html><head><title></title></head><body></body></html>"))
	return &WebSession{
		site:       site,
		opts:       opts,
		logger:     opts.Logger.Named("sim.web"),
		currentURL: &url.URL{Scheme: "about", Opaque: "blank"},
		currentDOM: doc,
	}, nil
}

// Cover marks the first match of loc as overlaid by another node, so clicks
// on it are intercepted. It exists for tests.
func (s *WebSession) Cover(loc locator.Locator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes, err := s.lookupLocked(loc)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return driver.NoSuchElement(loc)
	}
	setAttr(nodes[0], coveredAttr, "true")
	return nil
}

// ScrollY reports the simulated vertical scroll offset.
func (s *WebSession) ScrollY() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrollY
}

// -- driver.Session --

func (s *WebSession) FindOne(ctx context.Context, loc locator.Locator) (driver.Element, error) {
	els, err := s.FindAll(ctx, loc)
	return driver.First(els, err, loc)
}

func (s *WebSession) FindAll(ctx context.Context, loc locator.Locator) ([]driver.Element, error) {
	return driver.ImplicitLookup(ctx, s.opts.ImplicitWait, s.opts.PollInterval, func(context.Context) ([]driver.Element, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return nil, driver.ErrSessionClosed
		}
		nodes, err := s.lookupLocked(loc)
		if err != nil {
			return nil, err
		}
		els := make([]driver.Element, len(nodes))
		for i, n := range nodes {
			els[i] = &webElement{s: s, node: n, generation: s.generation}
		}
		return els, nil
	})
}

func (s *WebSession) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", driver.ErrSessionClosed
	}
	return s.currentURL.String(), nil
}

func (s *WebSession) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", driver.ErrSessionClosed
	}
	if t := htmlquery.FindOne(s.currentDOM, "//title"); t != nil {
		return strings.TrimSpace(htmlquery.InnerText(t)), nil
	}
	return "", nil
}

func (s *WebSession) NavigateTo(ctx context.Context, rawURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	return s.navigateLocked(rawURL)
}

// Back returns to the previous history entry. With no history it does nothing.
func (s *WebSession) Back(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	if len(s.history) == 0 {
		return nil
	}
	prev := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	return s.loadLocked(prev)
}

func (s *WebSession) Source(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", driver.ErrSessionClosed
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, s.currentDOM); err != nil {
		return "", fmt.Errorf("failed to render DOM snapshot: %w", err)
	}
	return buf.String(), nil
}

func (s *WebSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// -- driver.Scroller --

func (s *WebSession) ScrollIntoView(ctx context.Context, loc locator.Locator) error {
	if _, err := s.FindOne(ctx, loc); err != nil {
		return err
	}
	s.mu.Lock()
	s.scrollY += 400
	s.mu.Unlock()
	return nil
}

func (s *WebSession) ScrollToText(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	body := htmlquery.FindOne(s.currentDOM, "//body")
	if body == nil || !strings.Contains(s.visibleText(body), text) {
		return fmt.Errorf("%w: text %q", driver.ErrNoSuchElement, text)
	}
	s.scrollY += 400
	return nil
}

func (s *WebSession) ScrollBy(ctx context.Context, pixels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	s.scrollY = max(0, s.scrollY+pixels)
	return nil
}

func (s *WebSession) ScrollToEnd(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	var buf bytes.Buffer
	_ = html.Render(&buf, s.currentDOM)
	s.scrollY = buf.Len()
	return nil
}

// -- Navigation --

func (s *WebSession) navigateLocked(rawURL string) error {
	target, err := s.resolveURL(rawURL)
	if err != nil {
		return err
	}
	if target.Fragment != "" && sameDocument(target, s.currentURL) {
		s.currentURL = target
		s.scrollY += 400
		return nil
	}
	if s.currentURL.Scheme != "about" {
		s.history = append(s.history, s.currentURL)
	}
	return s.loadLocked(target)
}

func (s *WebSession) loadLocked(target *url.URL) error {
	for i := 0; ; i++ {
		if i == maxRedirects {
			return fmt.Errorf("too many redirects loading %s", target)
		}
		p, err := s.site.route(target)
		if err != nil {
			return err
		}
		if p.redirect != nil {
			target = p.redirect
			continue
		}
		doc, err := htmlquery.Parse(strings.NewReader(p.html))
		if err != nil {
			return fmt.Errorf("failed to parse HTML from '%s': %w", target, err)
		}
		s.updateStateLocked(p.url, doc)
		return nil
	}
}

// updateStateLocked swaps in a new document. Element references into the
// previous one become stale.
func (s *WebSession) updateStateLocked(u *url.URL, doc *html.Node) {
	readyAt := strconv.FormatInt(s.opts.now().Add(s.opts.Latency).UnixNano(), 10)
	for _, n := range htmlquery.Find(doc, "//*[@"+asyncAttr+"]") {
		setAttr(n, asyncAttr, readyAt)
	}
	s.currentURL = u
	s.currentDOM = doc
	s.generation++
	s.scrollY = 0
	s.logger.Debug("Session state updated", zap.String("url", u.String()))
}

func (s *WebSession) resolveURL(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", target, err)
	}
	if s.currentURL != nil && s.currentURL.Scheme != "about" {
		u = s.currentURL.ResolveReference(u)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		return nil, fmt.Errorf("cannot navigate to %q without a host", target)
	}
	return u, nil
}

func sameDocument(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host && a.Path == b.Path && a.RawQuery == b.RawQuery
}

// -- Lookup --

func cssString(v string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
}

func (s *WebSession) lookupLocked(loc locator.Locator) ([]*html.Node, error) {
	var nodes []*html.Node
	switch loc.Strategy() {
	case locator.PlatformQuery:
		found, err := htmlquery.QueryAll(s.currentDOM, loc.Value())
		if err != nil {
			return nil, fmt.Errorf("invalid XPath selector '%s': %w", loc.Value(), err)
		}
		nodes = found
	default:
		var css string
		switch loc.Strategy() {
		case locator.ID:
			css = "[id=" + cssString(loc.Value()) + "]"
		case locator.Name:
			css = "[name=" + cssString(loc.Value()) + "]"
		case locator.AccessibilityID:
			css = "[aria-label=" + cssString(loc.Value()) + "]"
		case locator.CSS:
			css = loc.Value()
		default:
			return nil, driver.UnsupportedLocator("sim web", loc)
		}
		if _, err := cascadia.Compile(css); err != nil {
			return nil, fmt.Errorf("invalid CSS selector '%s': %w", css, err)
		}
		nodes = goquery.NewDocumentFromNode(s.currentDOM).Find(css).Nodes
	}

	out := nodes[:0:0]
	for _, n := range nodes {
		if n.Type == html.ElementNode && !s.pending(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// pending reports whether n sits inside content that has not rendered yet.
func (s *WebSession) pending(n *html.Node) bool {
	now := s.opts.now().UnixNano()
	for ; n != nil; n = n.Parent {
		if v := htmlquery.SelectAttr(n, asyncAttr); v != "" {
			if at, err := strconv.ParseInt(v, 10, 64); err == nil && now < at {
				return true
			}
		}
	}
	return false
}

func (s *WebSession) attached(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == s.currentDOM {
			return true
		}
	}
	return false
}

// -- Rendering rules --

var nonRendered = map[string]bool{"head": true, "title": true, "meta": true, "script": true, "style": true}

func hiddenSelf(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if nonRendered[n.Data] || hasAttr(n, "hidden") {
		return true
	}
	if n.Data == "input" && strings.EqualFold(htmlquery.SelectAttr(n, "type"), "hidden") {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(htmlquery.SelectAttr(n, "style")), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// optionInSelect reports whether n is an entry of a dropdown, which browsers
// give no layout box while the dropdown is closed.
func optionInSelect(n *html.Node) bool {
	if n.Data != "option" {
		return false
	}
	for p := n.Parent; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if p.Data == "select" {
			return true
		}
	}
	return false
}

func (s *WebSession) displayed(n *html.Node) bool {
	if s.pending(n) || optionInSelect(n) {
		return false
	}
	for ; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if hiddenSelf(n) {
			return false
		}
	}
	return true
}

// visibleText is the rendered text of n with whitespace collapsed.
func (s *WebSession) visibleText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if hiddenSelf(c) || s.pending(c) {
				return
			}
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// -- Click and form handling --

func (s *WebSession) clickLocked(n *html.Node) error {
	tag := strings.ToLower(n.Data)

	if tag == "option" {
		s.selectOption(n)
		return nil
	}

	if a := anchorFor(n); a != nil {
		href := htmlquery.SelectAttr(a, "href")
		if href != "" && !strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return s.navigateLocked(href)
		}
	}

	inputType := strings.ToLower(htmlquery.SelectAttr(n, "type"))
	isSubmit := (tag == "button" && (inputType == "submit" || inputType == "")) ||
		(tag == "input" && inputType == "submit")
	if isSubmit {
		if form := findParentForm(n); form != nil {
			return s.submitFormLocked(form)
		}
	}

	s.logger.Debug("Click consequence ignored for element", zap.String("tag", tag))
	return nil
}

// anchorFor finds the link a click on n follows: n itself, an enclosing
// link, or for list items the first link inside.
func anchorFor(n *html.Node) *html.Node {
	for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if p.Data == "a" && hasAttr(p, "href") {
			return p
		}
	}
	if n.Data == "li" || n.Data == "div" {
		return htmlquery.FindOne(n, ".//a[@href]")
	}
	return nil
}

func (s *WebSession) selectOption(opt *html.Node) {
	sel := opt.Parent
	for sel != nil && sel.Data != "select" {
		sel = sel.Parent
	}
	if sel == nil {
		setAttr(opt, "selected", "selected")
		return
	}
	for _, o := range htmlquery.Find(sel, ".//option") {
		if o == opt {
			setAttr(o, "selected", "selected")
		} else {
			removeAttr(o, "selected")
		}
	}
}

// submitFormLocked serializes a GET form and navigates to its action.
func (s *WebSession) submitFormLocked(form *html.Node) error {
	action := htmlquery.SelectAttr(form, "action")
	target, err := s.resolveURL(action)
	if err != nil || action == "" {
		target = s.currentURL
	}

	formData := url.Values{}
	for _, input := range htmlquery.Find(form, ".//input | .//textarea | .//select") {
		name := htmlquery.SelectAttr(input, "name")
		if name == "" {
			continue
		}
		switch strings.ToLower(input.Data) {
		case "input":
			switch strings.ToLower(htmlquery.SelectAttr(input, "type")) {
			case "checkbox", "radio":
				if hasAttr(input, "checked") {
					value := htmlquery.SelectAttr(input, "value")
					if value == "" {
						value = "on"
					}
					formData.Add(name, value)
				}
			case "submit", "button", "image", "reset", "file":
			default:
				formData.Add(name, htmlquery.SelectAttr(input, "value"))
			}
		case "textarea":
			formData.Add(name, htmlquery.InnerText(input))
		case "select":
			for _, opt := range htmlquery.Find(input, ".//option[@selected]") {
				value := htmlquery.SelectAttr(opt, "value")
				if value == "" {
					value = htmlquery.InnerText(opt)
				}
				formData.Add(name, value)
			}
		}
	}

	next := *target
	next.Fragment = ""
	next.RawQuery = formData.Encode()
	return s.navigateLocked(next.String())
}

// onInputLocked refreshes the suggestion dropdown that belongs to a search box.
func (s *WebSession) onInputLocked(input *html.Node) {
	if htmlquery.SelectAttr(input, "name") != "search" {
		return
	}
	form := findParentForm(input)
	if form == nil {
		return
	}
	box := htmlquery.FindOne(form, ".//*[contains(concat(' ', normalize-space(@class), ' '), ' suggestions-dropdown ') or contains(concat(' ', normalize-space(@class), ' '), ' cdx-menu ')]")
	if box == nil {
		return
	}
	for c := box.FirstChild; c != nil; {
		next := c.NextSibling
		box.RemoveChild(c)
		c = next
	}

	titles := s.site.Corpus().Suggest(htmlquery.SelectAttr(input, "value"), maxSuggested)
	if len(titles) == 0 {
		setAttr(box, "hidden", "")
		return
	}
	removeAttr(box, "hidden")
	readyAt := strconv.FormatInt(s.opts.now().Add(s.opts.Latency).UnixNano(), 10)
	portal := htmlquery.SelectAttr(input, "id") == "searchInput"
	for _, t := range titles {
		slug := strings.ReplaceAll(t, " ", "_")
		var item *html.Node
		if portal {
			item = elementNode("a", "class", "suggestion-link", "href", "https://en.wikipedia.org/wiki/"+slug)
			item.AppendChild(&html.Node{Type: html.TextNode, Data: t})
		} else {
			item = elementNode("li", "class", "cdx-menu-item", "role", "option")
			link := elementNode("a", "href", "/wiki/"+slug)
			link.AppendChild(&html.Node{Type: html.TextNode, Data: t})
			item.AppendChild(link)
		}
		setAttr(item, asyncAttr, readyAt)
		box.AppendChild(item)
	}
}

// -- DOM helpers --

func elementNode(tag string, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func removeAttr(n *html.Node, key string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func setAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func findParentForm(element *html.Node) *html.Node {
	for form := element.Parent; form != nil; form = form.Parent {
		if form.Type == html.ElementNode && strings.ToLower(form.Data) == "form" {
			return form
		}
	}
	return nil
}

// -- driver.Element --

type webElement struct {
	s          *WebSession
	node       *html.Node
	generation uint64
}

var _ driver.OptionSelector = (*webElement)(nil)

// live must be called with the session lock held.
func (e *webElement) live() error {
	if e.s.closed {
		return driver.ErrSessionClosed
	}
	if e.generation != e.s.generation || !e.s.attached(e.node) {
		return fmt.Errorf("%w: <%s> is no longer attached to the DOM", driver.ErrStaleElement, e.node.Data)
	}
	return nil
}

func (e *webElement) Text(ctx context.Context) (string, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.live(); err != nil {
		return "", err
	}
	if !e.s.displayed(e.node) {
		return "", nil
	}
	return e.s.visibleText(e.node), nil
}

func (e *webElement) Attribute(ctx context.Context, name string) (string, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.live(); err != nil {
		return "", err
	}
	n := e.node
	switch name {
	case "value":
		switch n.Data {
		case "textarea":
			return htmlquery.InnerText(n), nil
		case "select":
			if opt := htmlquery.FindOne(n, ".//option[@selected]"); opt != nil {
				return htmlquery.SelectAttr(opt, "value"), nil
			}
			return "", nil
		}
	case "href", "src":
		raw := htmlquery.SelectAttr(n, name)
		if raw == "" {
			return "", nil
		}
		if u, err := url.Parse(raw); err == nil {
			return e.s.currentURL.ResolveReference(u).String(), nil
		}
		return raw, nil
	case "innerText", "textContent":
		return e.s.visibleText(n), nil
	}
	return htmlquery.SelectAttr(n, name), nil
}

func (e *webElement) Displayed(ctx context.Context) (bool, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.live(); err != nil {
		return false, err
	}
	return e.s.displayed(e.node), nil
}

func (e *webElement) Enabled(ctx context.Context) (bool, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.live(); err != nil {
		return false, err
	}
	return !hasAttr(e.node, "disabled"), nil
}

func (e *webElement) Click(ctx context.Context) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.live(); err != nil {
		return err
	}
	if !e.s.displayed(e.node) {
		return fmt.Errorf("%w: <%s> is not displayed", driver.ErrElementNotInteractable, e.node.Data)
	}
	for p := e.node; p != nil; p = p.Parent {
		if hasAttr(p, coveredAttr) {
			return fmt.Errorf("%w: element click intercepted on <%s>", driver.ErrElementNotInteractable, e.node.Data)
		}
	}
	if hasAttr(e.node, "disabled") {
		return nil
	}
	return e.s.clickLocked(e.node)
}

func (e *webElement) SelectOption(ctx context.Context, value string) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.live(); err != nil {
		return err
	}
	if e.node.Data != "select" {
		return fmt.Errorf("%w: <%s> is not a select", driver.ErrElementNotInteractable, e.node.Data)
	}
	if !e.s.displayed(e.node) || hasAttr(e.node, "disabled") {
		return fmt.Errorf("%w: <select> cannot be changed", driver.ErrElementNotInteractable)
	}
	for _, o := range htmlquery.Find(e.node, ".//option") {
		if htmlquery.SelectAttr(o, "value") == value && !hasAttr(o, "disabled") {
			e.s.selectOption(o)
			return nil
		}
	}
	return fmt.Errorf("%w: option %q", driver.ErrNoSuchElement, value)
}

func (e *webElement) editable() error {
	if err := e.live(); err != nil {
		return err
	}
	tag := e.node.Data
	if tag != "input" && tag != "textarea" {
		return fmt.Errorf("%w: <%s> is not a text input", driver.ErrElementNotInteractable, tag)
	}
	if !e.s.displayed(e.node) || hasAttr(e.node, "disabled") || hasAttr(e.node, "readonly") {
		return fmt.Errorf("%w: <%s> cannot be edited", driver.ErrElementNotInteractable, tag)
	}
	return nil
}

func (e *webElement) setValue(v string) {
	if e.node.Data == "textarea" {
		for c := e.node.FirstChild; c != nil; {
			next := c.NextSibling
			e.node.RemoveChild(c)
			c = next
		}
		e.node.AppendChild(&html.Node{Type: html.TextNode, Data: v})
		return
	}
	setAttr(e.node, "value", v)
}

func (e *webElement) value() string {
	if e.node.Data == "textarea" {
		return htmlquery.InnerText(e.node)
	}
	return htmlquery.SelectAttr(e.node, "value")
}

func (e *webElement) Clear(ctx context.Context) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.editable(); err != nil {
		return err
	}
	e.setValue("")
	e.s.onInputLocked(e.node)
	return nil
}

// SendKeys appends text to the field value. A newline or the WebDriver Enter
// key submits the enclosing form.
func (e *webElement) SendKeys(ctx context.Context, text string) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.editable(); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(e.value())
	for _, r := range text {
		if r == '\n' || r == '\ue007' {
			e.setValue(b.String())
			if form := findParentForm(e.node); form != nil {
				return e.s.submitFormLocked(form)
			}
			continue
		}
		b.WriteRune(r)
	}
	e.setValue(b.String())
	e.s.onInputLocked(e.node)
	return nil
}

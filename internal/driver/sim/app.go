package sim

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
)

// AppPackage is the package name of the simulated Wikipedia app.
const AppPackage = "org.wikipedia"

const (
	idPrefix        = AppPackage + ":id/"
	launcherPackage = "com.google.android.apps.nexuslauncher"
	screenWidth     = 1080
	screenHeight    = 2400
	rowHeight       = 96
	articleWindow   = 4
	feedWindow      = 3
	maxAppResults   = 20
	scrollStep      = 600
)

const (
	clsFrame       = "android.widget.FrameLayout"
	clsLinear      = "android.widget.LinearLayout"
	clsViewGroup   = "android.view.ViewGroup"
	clsText        = "android.widget.TextView"
	clsButton      = "android.widget.Button"
	clsImage       = "android.widget.ImageView"
	clsImageButton = "android.widget.ImageButton"
	clsEdit        = "android.widget.EditText"
	clsList        = "android.widget.ListView"
	clsProgress    = "android.widget.ProgressBar"
	clsRecycler    = "androidx.recyclerview.widget.RecyclerView"
	clsWebView     = "android.webkit.WebView"
)

type appScreen int

const (
	appTerminated appScreen = iota
	appBackground
	appOnboarding
	appMain
	appSearch
	appArticle
)

func (s appScreen) String() string {
	switch s {
	case appTerminated:
		return "terminated"
	case appBackground:
		return "background"
	case appOnboarding:
		return "onboarding"
	case appMain:
		return "main"
	case appSearch:
		return "search"
	case appArticle:
		return "article"
	}
	return "unknown"
}

type navTab int

const (
	tabExplore navTab = iota
	tabSaved
	tabEdits
)

type overlay int

const (
	overlayNone overlay = iota
	overlayTOC
	overlayMenu
	overlayLanguages
	overlayMore
)

// appState is one entry of the activity back stack.
type appState struct {
	screen  appScreen
	tab     navTab
	overlay overlay
	query   string
	readyAt time.Time
	article string
	scroll  int
}

var onboardingPages = []struct{ title, body string }{
	{"The Free Encyclopedia\n…in over 300 languages", "We've found the following on your device:"},
	{"New ways to explore", "Dive down the Wikipedia rabbit hole with a constantly updating Explore feed."},
	{"Reading lists with sync", "You can make reading lists from articles you want to read later, even when you're offline."},
	{"Data & Privacy", "We believe that you should not have to provide personal information to participate in the free knowledge movement."},
}

var feedCards = []string{
	"Featured article",
	"Top read",
	"In the news",
	"On this day",
	"Picture of the day",
	"Because you read",
	"Places",
}

var overflowItems = []string{"Share", "Add to reading list", "Find in article", "Theme", "Talk page", "Edit history"}

var moreItems = []struct{ id, label string }{
	{"main_drawer_settings_container", "Settings"},
	{"main_drawer_donate_container", "Donate"},
	{"main_drawer_login_button", "Log in to Wikipedia"},
}

// appModel is the Wikipedia app state machine. It is not safe for concurrent
// use; AppSession serializes access.
type appModel struct {
	corpus  *Corpus
	latency time.Duration
	now     func() time.Time

	state          appState
	stack          []appState
	suspended      appState
	onboardingPage int
	onboarded      bool
	announcement   bool
	keyboard       bool
	recent         []string
	saved          map[string]bool
	feed           int
}

func newAppModel(corpus *Corpus, latency time.Duration, now func() time.Time, onboarded bool) *appModel {
	m := &appModel{
		corpus:       corpus,
		latency:      latency,
		now:          now,
		onboarded:    onboarded,
		announcement: true,
		saved:        make(map[string]bool),
	}
	m.launch()
	return m
}

// -- Transitions --

func (m *appModel) launch() {
	m.stack = nil
	m.keyboard = false
	m.onboardingPage = 0
	if m.onboarded {
		m.state = appState{screen: appMain}
		return
	}
	m.state = appState{screen: appOnboarding}
}

func (m *appModel) push(next appState) {
	m.stack = append(m.stack, m.state)
	m.state = next
}

func (m *appModel) finishOnboarding() {
	m.onboarded = true
	m.state = appState{screen: appMain}
	m.stack = nil
}

func (m *appModel) openSearch() {
	m.push(appState{screen: appSearch})
	m.keyboard = true
}

func (m *appModel) openArticle(title string) {
	if m.state.screen == appSearch && m.state.query != "" {
		m.remember(m.state.query)
	}
	m.keyboard = false
	m.push(appState{screen: appArticle, article: title})
}

func (m *appModel) remember(query string) {
	out := []string{query}
	for _, q := range m.recent {
		if q != query {
			out = append(out, q)
		}
	}
	m.recent = out
}

func (m *appModel) setQuery(q string) {
	m.state.query = q
	m.state.readyAt = m.now().Add(m.latency)
}

// back applies the system back key.
func (m *appModel) back() {
	switch {
	case m.state.overlay != overlayNone:
		m.state.overlay = overlayNone
	case m.keyboard:
		m.keyboard = false
	case len(m.stack) > 0:
		m.state = m.stack[len(m.stack)-1]
		m.stack = m.stack[:len(m.stack)-1]
	case m.state.screen == appMain || m.state.screen == appOnboarding:
		m.suspended = m.state
		m.state = appState{screen: appBackground}
	}
}

func (m *appModel) activate() {
	switch m.state.screen {
	case appTerminated:
		m.launch()
	case appBackground:
		m.state = m.suspended
	}
}

func (m *appModel) terminate() {
	m.state = appState{screen: appTerminated}
	m.stack = nil
	m.keyboard = false
}

// -- Scrolling --

func (m *appModel) article() (Article, bool) {
	if m.state.screen != appArticle {
		return Article{}, false
	}
	return m.corpus.Lookup(m.state.article)
}

// articleBlocks flattens an article into the paragraphs the page renders and
// records where each section starts.
func articleBlocks(a Article) ([]string, map[string]int) {
	blocks := append([]string(nil), a.Paragraphs...)
	starts := make(map[string]int, len(a.Sections))
	for _, s := range a.Sections {
		starts[s.Name] = len(blocks)
		blocks = append(blocks, s.Name)
		if s.Text != "" {
			blocks = append(blocks, s.Text)
		}
	}
	return blocks, starts
}

func scrollSteps(pixels int) int {
	steps := pixels / scrollStep
	if steps == 0 && pixels != 0 {
		if pixels > 0 {
			return 1
		}
		return -1
	}
	return steps
}

// scroll moves the scrollable content of the current screen by steps and
// reports whether anything moved.
func (m *appModel) scroll(steps int) bool {
	if a, ok := m.article(); ok {
		blocks, _ := articleBlocks(a)
		next := min(max(m.state.scroll+steps, 0), max(len(blocks)-1, 0))
		moved := next != m.state.scroll
		m.state.scroll = next
		return moved
	}
	if m.state.screen == appMain && m.state.tab == tabExplore {
		next := max(m.feed+steps, 0)
		moved := next != m.feed
		m.feed = next
		return moved
	}
	return false
}

// -- Rendering --

// hierarchy is one rendered view tree plus the behavior bound to its nodes.
type hierarchy struct {
	doc     *etree.Document
	actions map[*etree.Element]func()
	inputs  map[*etree.Element]bool
	y       int
}

func (h *hierarchy) root() *etree.Element { return h.doc.Root() }

func (h *hierarchy) add(parent *etree.Element, class, id string) *etree.Element {
	el := parent.CreateElement(class)
	el.CreateAttr("index", strconv.Itoa(len(parent.ChildElements())-1))
	el.CreateAttr("package", AppPackage)
	el.CreateAttr("class", class)
	el.CreateAttr("text", "")
	rid := ""
	if id != "" {
		rid = idPrefix + id
	}
	el.CreateAttr("resource-id", rid)
	el.CreateAttr("content-desc", "")
	el.CreateAttr("clickable", "false")
	el.CreateAttr("enabled", "true")
	el.CreateAttr("focused", "false")
	el.CreateAttr("scrollable", "false")
	el.CreateAttr("selected", "false")
	el.CreateAttr("displayed", "true")
	top := min(h.y, screenHeight-rowHeight)
	el.CreateAttr("bounds", fmt.Sprintf("[0,%d][%d,%d]", top, screenWidth, top+rowHeight))
	h.y += rowHeight / 2
	return el
}

func (h *hierarchy) onClick(el *etree.Element, fn func()) *etree.Element {
	el.CreateAttr("clickable", "true")
	h.actions[el] = fn
	return el
}

func withText(el *etree.Element, text string) *etree.Element {
	el.CreateAttr("text", text)
	return el
}

func withDesc(el *etree.Element, desc string) *etree.Element {
	el.CreateAttr("content-desc", desc)
	return el
}

func flag(el *etree.Element, key string, v bool) *etree.Element {
	el.CreateAttr(key, strconv.FormatBool(v))
	return el
}

// render builds the view hierarchy for the current state.
func (m *appModel) render() *hierarchy {
	h := &hierarchy{
		doc:     etree.NewDocument(),
		actions: make(map[*etree.Element]func()),
		inputs:  make(map[*etree.Element]bool),
	}
	h.doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="yes"`)
	top := h.doc.CreateElement("hierarchy")
	top.CreateAttr("index", "0")
	top.CreateAttr("class", "hierarchy")
	top.CreateAttr("rotation", "0")
	top.CreateAttr("width", strconv.Itoa(screenWidth))
	top.CreateAttr("height", strconv.Itoa(screenHeight))

	switch m.state.screen {
	case appTerminated, appBackground:
		m.renderLauncher(h, top)
	case appOnboarding:
		m.renderOnboarding(h, h.add(top, clsFrame, ""))
	case appMain:
		m.renderMain(h, h.add(top, clsFrame, "fragment_main_container"))
	case appSearch:
		m.renderSearch(h, h.add(top, clsFrame, "search_toolbar_container"))
	case appArticle:
		m.renderArticle(h, h.add(top, clsFrame, "page_fragment"))
	}
	return h
}

func (m *appModel) renderLauncher(h *hierarchy, top *etree.Element) {
	home := h.add(top, clsFrame, "")
	home.CreateAttr("package", launcherPackage)
	icon := withDesc(withText(h.add(home, clsText, ""), "Wikipedia"), "Wikipedia")
	icon.CreateAttr("package", launcherPackage)
	h.onClick(icon, m.activate)
}

func (m *appModel) renderOnboarding(h *hierarchy, frame *etree.Element) {
	pager := h.add(frame, "androidx.viewpager.widget.ViewPager", "fragment_pager")
	p := onboardingPages[m.onboardingPage]
	h.add(pager, clsImage, "imageViewCentered")
	withText(h.add(pager, clsText, "primaryTextView"), p.title)
	withText(h.add(pager, clsText, "secondaryTextView"), p.body)

	if m.onboardingPage == len(onboardingPages)-1 {
		h.onClick(withText(h.add(frame, clsButton, "fragment_onboarding_done_button"), "Get started"), m.finishOnboarding)
		return
	}
	h.onClick(withText(h.add(frame, clsButton, "fragment_onboarding_skip_button"), "Skip"), m.finishOnboarding)
	h.onClick(withDesc(h.add(frame, clsImageButton, "fragment_onboarding_forward_button"), "Continue"), func() {
		m.onboardingPage++
	})
}

func (m *appModel) renderMain(h *hierarchy, frame *etree.Element) {
	toolbar := h.add(frame, clsViewGroup, "main_toolbar")
	switch m.state.tab {
	case tabExplore:
		withDesc(h.add(toolbar, clsImage, "main_toolbar_wordmark"), "Wikipedia")
		m.renderFeed(h, frame)
	case tabSaved:
		withText(h.add(toolbar, clsText, ""), "Saved")
		list := h.add(frame, clsRecycler, "reading_list_list")
		withText(h.add(list, clsText, "item_title"), "Saved")
		for _, a := range m.corpusOrder(m.saved) {
			title := a
			h.onClick(withText(h.add(list, clsText, "page_list_item_title"), title), func() { m.openArticle(title) })
		}
	case tabEdits:
		withText(h.add(toolbar, clsText, ""), "Edits")
		withText(h.add(frame, clsText, "suggestedEditsHeader"), "Suggested edits")
	}

	nav := h.add(frame, clsViewGroup, "main_nav_tab_layout")
	tab := func(id, label string, selected bool, fn func()) {
		flag(h.onClick(withDesc(h.add(nav, clsFrame, id), label), fn), "selected", selected)
	}
	tab("nav_tab_explore", "Explore", m.state.tab == tabExplore, func() { m.state.tab = tabExplore; m.state.overlay = overlayNone })
	tab("nav_tab_reading_lists", "Saved", m.state.tab == tabSaved, func() { m.state.tab = tabSaved; m.state.overlay = overlayNone })
	tab("nav_tab_search", "Search", false, m.openSearch)
	tab("nav_tab_edits", "Edits", m.state.tab == tabEdits, func() { m.state.tab = tabEdits; m.state.overlay = overlayNone })
	tab("nav_more_container", "More", false, func() { m.state.overlay = overlayMore })

	if m.state.overlay == overlayMore {
		sheet := h.add(frame, clsLinear, "main_drawer_container")
		for _, it := range moreItems {
			h.onClick(withText(h.add(sheet, clsText, it.id), it.label), func() { m.state.overlay = overlayNone })
		}
	}
}

func (m *appModel) renderFeed(h *hierarchy, frame *etree.Element) {
	search := h.onClick(h.add(frame, clsLinear, "search_container"), m.openSearch)
	withText(h.add(search, clsText, ""), "Search Wikipedia")

	feed := flag(h.add(frame, clsRecycler, "feed_view"), "scrollable", true)
	if m.announcement && m.feed == 0 {
		card := h.add(feed, clsLinear, "view_announcement_container")
		withText(h.add(card, clsText, "view_announcement_text"),
			"Customize your Explore feed: You can now choose what to show on your feed, and also prioritize your favorite types of content.")
		h.onClick(withText(h.add(card, clsButton, "view_announcement_action_negative"), "Got it"), func() {
			m.announcement = false
		})
	}
	for i := 0; i < feedWindow; i++ {
		n := m.feed + i
		card := h.add(feed, clsLinear, "view_list_card_header")
		withText(h.add(card, clsText, "view_card_header_title"), feedCards[n%len(feedCards)])
		list := h.add(card, clsRecycler, "view_list_card_list")
		for j := 0; j < 3; j++ {
			a := m.corpus.At(n*3 + j)
			item := h.onClick(h.add(list, clsLinear, "view_list_card_item"), func() { m.openArticle(a.Title) })
			withText(h.add(item, clsText, "view_list_card_item_title"), a.Title)
			if a.Description != "" {
				withText(h.add(item, clsText, "view_list_card_item_subtitle"), a.Description)
			}
		}
	}
}

func (m *appModel) renderSearch(h *hierarchy, frame *etree.Element) {
	cab := h.add(frame, clsLinear, "search_cab_view")
	h.onClick(withDesc(h.add(cab, clsImageButton, ""), "Navigate up"), m.back)
	edit := h.add(cab, clsEdit, "search_src_text")
	withText(edit, m.state.query)
	flag(edit, "focused", m.keyboard)
	h.onClick(edit, func() { m.keyboard = true })
	h.inputs[edit] = true
	if m.state.query != "" {
		h.onClick(withDesc(h.add(cab, clsImage, "search_close_btn"), "Clear query"), func() {
			m.setQuery("")
			m.keyboard = true
		})
	}

	switch {
	case m.state.query == "":
		withText(h.add(frame, clsText, "recent_searches_title"), "Recent searches")
		list := h.add(frame, clsRecycler, "recent_searches_list")
		for _, q := range m.recent {
			h.onClick(withText(h.add(list, clsText, "text1"), q), func() { m.setQuery(q) })
		}
	case m.now().Before(m.state.readyAt):
		h.add(frame, clsProgress, "search_progress_bar")
	default:
		results := m.corpus.Search(m.state.query)
		if len(results) == 0 {
			empty := h.add(frame, clsLinear, "search_empty_view")
			withText(h.add(empty, clsText, "search_empty_message"), "No results")
			return
		}
		list := flag(h.add(frame, clsRecycler, "search_results_list"), "scrollable", true)
		for _, a := range results[:min(len(results), maxAppResults)] {
			item := h.onClick(h.add(list, clsLinear, "page_list_item_container"), func() { m.openArticle(a.Title) })
			withText(h.add(item, clsText, "page_list_item_title"), a.Title)
			if a.Description != "" {
				withText(h.add(item, clsText, "page_list_item_description"), a.Description)
			}
		}
	}
}

func (m *appModel) renderArticle(h *hierarchy, frame *etree.Element) {
	a, ok := m.article()
	toolbar := h.add(frame, clsViewGroup, "page_toolbar")
	h.onClick(withDesc(h.add(toolbar, clsImageButton, ""), "Navigate up"), m.back)
	h.onClick(withDesc(h.add(toolbar, clsImage, "page_toolbar_button_search"), "Search Wikipedia"), m.openSearch)
	h.onClick(withDesc(h.add(toolbar, clsImage, "page_toolbar_button_tabs"), "Tabs"), func() {})
	h.onClick(withDesc(h.add(toolbar, clsImage, "page_toolbar_button_show_overflow_menu"), "More options"), func() {
		m.state.overlay = overlayMenu
	})

	web := flag(h.add(frame, clsWebView, "page_web_view"), "scrollable", true)
	if !ok {
		withText(h.add(web, clsText, "view_wiki_error_text"), "The page does not exist.")
		return
	}
	withDesc(web, a.Title)
	blocks, starts := articleBlocks(a)
	if m.state.scroll == 0 {
		if a.Image {
			h.add(web, clsImage, "view_page_header_image")
		}
		withText(h.add(web, clsText, "view_page_title_text"), a.Title)
		if a.Description != "" {
			withText(h.add(web, clsText, "view_page_subtitle_text"), a.Description)
		}
	}
	contents := h.add(web, clsViewGroup, "page_contents_container")
	end := min(m.state.scroll+articleWindow, len(blocks))
	for _, b := range blocks[m.state.scroll:end] {
		withText(h.add(contents, clsText, ""), b)
	}

	actions := h.add(frame, clsLinear, "page_actions_tab_layout")
	save := "Save"
	if m.saved[a.Title] {
		save = "Saved"
	}
	h.onClick(withDesc(withText(h.add(actions, clsText, "page_save"), save), save), func() {
		m.saved[a.Title] = !m.saved[a.Title]
	})
	h.onClick(withDesc(withText(h.add(actions, clsText, "page_language"), "Language"), "Language"), func() {
		m.state.overlay = overlayLanguages
	})
	h.onClick(withDesc(withText(h.add(actions, clsText, "page_toc_button"), "Contents"), "Contents"), func() {
		m.state.overlay = overlayTOC
	})

	switch m.state.overlay {
	case overlayTOC:
		list := h.add(frame, clsList, "page_toc_list")
		h.onClick(withText(h.add(list, clsText, "page_toc_item_text"), a.Title), func() {
			m.state.scroll = 0
			m.state.overlay = overlayNone
		})
		for _, s := range a.Sections {
			start := starts[s.Name]
			h.onClick(withText(h.add(list, clsText, "page_toc_item_text"), s.Name), func() {
				m.state.scroll = start
				m.state.overlay = overlayNone
			})
		}
	case overlayMenu:
		list := h.add(frame, clsList, "overflow_list")
		for _, label := range overflowItems {
			h.onClick(withText(h.add(list, clsText, "title"), label), func() { m.state.overlay = overlayNone })
		}
	case overlayLanguages:
		panel := h.add(frame, clsLinear, "langlinks_container")
		withText(h.add(panel, clsText, "langlinks_title"), fmt.Sprintf("Other languages (%d)", a.Languages))
		list := h.add(panel, clsRecycler, "langlinks_recycler")
		for i, l := range PortalLanguages[1:] {
			if i == a.Languages {
				break
			}
			h.onClick(withText(h.add(list, clsText, "localized_language_name"), l.Name), func() {
				m.state.overlay = overlayNone
			})
		}
	}
}

// corpusOrder returns the set members in corpus order.
func (m *appModel) corpusOrder(set map[string]bool) []string {
	var out []string
	for i := 0; i < m.corpus.Len(); i++ {
		if t := m.corpus.At(i).Title; set[t] {
			out = append(out, t)
		}
	}
	return out
}

package mobile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
	"github.com/xkilldash9x/wikiprobe/internal/screen"
	"github.com/xkilldash9x/wikiprobe/internal/wait"
)

// MainScreen is the app's home with the Explore feed and the bottom navigation.
type MainScreen struct {
	*screen.Base
	env Env

	searchContainer locator.Locator
	skipButton      locator.Locator
	forwardButton   locator.Locator
	wordmark        locator.Locator
	announcement    locator.Locator
	exploreTab      locator.Locator
	savedTab        locator.Locator
	searchTab       locator.Locator
	editsTab        locator.Locator
	moreTab         locator.Locator
	cardTitles      locator.Locator
	cardLists       locator.Locator
}

func NewMainScreen(env Env) *MainScreen {
	return &MainScreen{
		Base:            env.base("MainScreen"),
		env:             env,
		searchContainer: locator.ByID("search_container"),
		skipButton:      locator.ByID("fragment_onboarding_skip_button"),
		forwardButton:   locator.ByID("fragment_onboarding_forward_button"),
		wordmark:        locator.ByID("main_toolbar_wordmark"),
		announcement:    locator.ByID("view_announcement_text"),
		exploreTab:      locator.ByID("nav_tab_explore"),
		savedTab:        locator.ByID("nav_tab_reading_lists"),
		searchTab:       locator.ByID("nav_tab_search"),
		editsTab:        locator.ByID("nav_tab_edits"),
		moreTab:         locator.ByID("nav_more_container"),
		cardTitles:      locator.ByID("view_card_header_title"),
		cardLists:       locator.ByID("view_list_card_list"),
	}
}

func openMain(ctx context.Context, env Env) (*MainScreen, error) {
	m := NewMainScreen(env)
	if err := m.waitLoaded(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MainScreen) waitLoaded(ctx context.Context) error {
	s := m.Session()
	_, err := m.WaitAny(ctx,
		wait.Bool(wait.ElementVisible(s, m.searchContainer)),
		wait.Bool(wait.ElementVisible(s, m.exploreTab)),
	)
	if err != nil {
		return fmt.Errorf("main screen did not load: %w", err)
	}
	return nil
}

// SkipOnboardingIfPresent dismisses the first-run pager when it is showing.
func (m *MainScreen) SkipOnboardingIfPresent(ctx context.Context) (*MainScreen, error) {
	if !m.IsDisplayed(ctx, m.skipButton) {
		return m, nil
	}
	m.Logger().Info("Skipping onboarding.")
	if err := m.Click(ctx, m.skipButton); err != nil {
		return nil, fmt.Errorf("skip onboarding: %w", err)
	}
	if err := m.WaitInvisible(ctx, m.skipButton); err != nil {
		return nil, err
	}
	return m, nil
}

// WaitForMainScreen skips onboarding if needed and waits for the feed or the
// navigation bar.
func (m *MainScreen) WaitForMainScreen(ctx context.Context) (*MainScreen, error) {
	if _, err := m.SkipOnboardingIfPresent(ctx); err != nil {
		return nil, err
	}
	if err := m.waitLoaded(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MainScreen) IsMainScreenLoaded(ctx context.Context) bool {
	return m.IsDisplayed(ctx, m.searchContainer) || m.IsDisplayed(ctx, m.exploreTab)
}

// IsOnboardingDisplayed reports whether the first-run pager is showing.
func (m *MainScreen) IsOnboardingDisplayed(ctx context.Context) bool {
	return m.IsDisplayed(ctx, m.skipButton) || m.IsDisplayed(ctx, m.forwardButton)
}

// ClickSearch opens search from the box at the top of the feed.
func (m *MainScreen) ClickSearch(ctx context.Context) (*SearchScreen, error) {
	if err := m.Click(ctx, m.searchContainer); err != nil {
		return nil, err
	}
	return openSearch(ctx, m.env)
}

// ClickSearchTab opens search from the bottom navigation.
func (m *MainScreen) ClickSearchTab(ctx context.Context) (*SearchScreen, error) {
	if err := m.Click(ctx, m.searchTab); err != nil {
		return nil, err
	}
	return openSearch(ctx, m.env)
}

func (m *MainScreen) IsWordmarkDisplayed(ctx context.Context) bool {
	return m.IsDisplayed(ctx, m.wordmark)
}

func (m *MainScreen) tab(ctx context.Context, loc locator.Locator) (*MainScreen, error) {
	if err := m.Click(ctx, loc); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MainScreen) ClickExploreTab(ctx context.Context) (*MainScreen, error) {
	return m.tab(ctx, m.exploreTab)
}

func (m *MainScreen) ClickSavedTab(ctx context.Context) (*MainScreen, error) {
	return m.tab(ctx, m.savedTab)
}

func (m *MainScreen) ClickEditsTab(ctx context.Context) (*MainScreen, error) {
	return m.tab(ctx, m.editsTab)
}

// ClickMoreTab opens the More sheet.
func (m *MainScreen) ClickMoreTab(ctx context.Context) (*MainScreen, error) {
	return m.tab(ctx, m.moreTab)
}

func (m *MainScreen) IsExploreTabDisplayed(ctx context.Context) bool {
	return m.IsDisplayed(ctx, m.exploreTab)
}

func (m *MainScreen) IsSavedTabDisplayed(ctx context.Context) bool {
	return m.IsDisplayed(ctx, m.savedTab)
}

func (m *MainScreen) IsSearchTabDisplayed(ctx context.Context) bool {
	return m.IsDisplayed(ctx, m.searchTab)
}

// IsTabSelected reports whether the navigation tab with the given
// accessibility label is the selected one.
func (m *MainScreen) IsTabSelected(ctx context.Context, label string) bool {
	v, err := m.Handle(locator.ByAccessibilityID(label)).Attribute(driver.WithoutImplicitWait(ctx), "selected")
	return err == nil && v == "true"
}

func (m *MainScreen) HasFeedCards(ctx context.Context) bool {
	return m.IsDisplayed(ctx, m.cardLists)
}

func (m *MainScreen) FeedCardTitlesCount(ctx context.Context) int {
	return m.Count(ctx, m.cardTitles)
}

// ScrollFeed scrolls the feed down by about half a screen.
func (m *MainScreen) ScrollFeed(ctx context.Context) error {
	return m.ScrollBy(ctx, scrollDistance)
}

// FirstFeedCardTitle returns the header of the topmost card on screen, or ""
// when no card is showing.
func (m *MainScreen) FirstFeedCardTitle(ctx context.Context) (string, error) {
	titles, err := m.Texts(ctx, m.cardTitles)
	if err != nil || len(titles) == 0 {
		return "", err
	}
	return titles[0], nil
}

func (m *MainScreen) IsAnnouncementDisplayed(ctx context.Context) bool {
	return m.IsDisplayed(ctx, m.announcement)
}

// Restart stops the app, starts it again and waits for the main screen.
func (m *MainScreen) Restart(ctx context.Context) (*MainScreen, error) {
	pkg := m.env.appPackage()
	m.Logger().Info("Restarting app.", zap.String("package", pkg))
	if err := m.TerminateApp(ctx, pkg); err != nil {
		return nil, fmt.Errorf("terminate %s: %w", pkg, err)
	}
	if err := m.ActivateApp(ctx, pkg); err != nil {
		return nil, fmt.Errorf("activate %s: %w", pkg, err)
	}
	return m.WaitForMainScreen(ctx)
}

// GoBack presses the system back key.
func (m *MainScreen) GoBack(ctx context.Context) error {
	return m.Back(ctx)
}

// Package screen holds the capability shared by every web page and mobile
// screen object: waiting, acting and reading through element handles, plus
// navigation and scrolling that delegate to the session's optional
// capabilities.
package screen

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/element"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
	"github.com/xkilldash9x/wikiprobe/internal/wait"
)

// Capability is the interaction surface page objects build on. Probes return
// bool and never fail; actions return an error.
type Capability interface {
	WaitVisible(ctx context.Context, loc locator.Locator) (driver.Element, error)
	WaitClickable(ctx context.Context, loc locator.Locator) (driver.Element, error)
	Click(ctx context.Context, loc locator.Locator) error
	Type(ctx context.Context, loc locator.Locator, text string) error
	ReadText(ctx context.Context, loc locator.Locator) (string, error)
	IsDisplayed(ctx context.Context, loc locator.Locator) bool
}

// Base implements Capability over a session it does not own.
type Base struct {
	session driver.Session
	poller  *wait.Poller
	logger  *zap.Logger
}

var _ Capability = (*Base)(nil)

// NewBase returns a Base for the named screen.
func NewBase(s driver.Session, p *wait.Poller, logger *zap.Logger, name string) *Base {
	return &Base{
		session: s,
		poller:  p,
		logger:  logger.Named("screen").Named(name),
	}
}

// Session returns the underlying session, for constructing follow-on screens.
func (b *Base) Session() driver.Session { return b.session }

// Poller returns the default poller.
func (b *Base) Poller() *wait.Poller { return b.poller }

// Logger returns the screen logger.
func (b *Base) Logger() *zap.Logger { return b.logger }

// Handle returns an element handle for loc.
func (b *Base) Handle(loc locator.Locator) *element.Handle {
	return element.ByLocator(b.session, b.poller, loc)
}

// Ref wraps an element obtained from FindAll.
func (b *Base) Ref(el driver.Element, name string) *element.Handle {
	return element.FromElement(b.session, b.poller, el, name)
}

func (b *Base) WaitVisible(ctx context.Context, loc locator.Locator) (driver.Element, error) {
	return b.Handle(loc).WaitVisible(ctx)
}

func (b *Base) WaitClickable(ctx context.Context, loc locator.Locator) (driver.Element, error) {
	return b.Handle(loc).WaitClickable(ctx)
}

func (b *Base) Click(ctx context.Context, loc locator.Locator) error {
	b.logger.Debug("Click.", zap.Stringer("locator", loc))
	return b.Handle(loc).Click(ctx)
}

func (b *Base) Type(ctx context.Context, loc locator.Locator, text string) error {
	b.logger.Debug("Type.", zap.Stringer("locator", loc), zap.Int("length", len(text)))
	return b.Handle(loc).Type(ctx, text)
}

func (b *Base) ReadText(ctx context.Context, loc locator.Locator) (string, error) {
	return b.Handle(loc).Text(ctx)
}

func (b *Base) IsDisplayed(ctx context.Context, loc locator.Locator) bool {
	return b.Handle(loc).IsDisplayed(ctx)
}

// SelectOption waits for the dropdown at loc and picks the entry with value.
func (b *Base) SelectOption(ctx context.Context, loc locator.Locator, value string) error {
	b.logger.Debug("Select option.", zap.Stringer("locator", loc), zap.String("value", value))
	el, err := b.WaitVisible(ctx, loc)
	if err != nil {
		return err
	}
	sel, ok := el.(driver.OptionSelector)
	if !ok {
		return fmt.Errorf("%w: selecting options of %s", driver.ErrUnsupported, loc)
	}
	return sel.SelectOption(ctx, value)
}

// ReadAttribute waits for loc to be visible and returns the named attribute.
func (b *Base) ReadAttribute(ctx context.Context, loc locator.Locator, name string) (string, error) {
	return b.Handle(loc).Attribute(ctx, name)
}

// WaitInvisible waits until loc is gone or hidden.
func (b *Base) WaitInvisible(ctx context.Context, loc locator.Locator) error {
	return b.Handle(loc).WaitInvisible(ctx)
}

// FindAll snapshots the current matches of loc without waiting for any.
func (b *Base) FindAll(ctx context.Context, loc locator.Locator) ([]driver.Element, error) {
	return wait.Await(ctx, b.poller, wait.ElementsPresent(b.session, loc))
}

// Count returns the number of matches of loc, or 0 when the lookup fails.
func (b *Base) Count(ctx context.Context, loc locator.Locator) int {
	els, err := b.FindAll(ctx, loc)
	if err != nil {
		b.logger.Debug("Count failed.", zap.Stringer("locator", loc), zap.Error(err))
		return 0
	}
	return len(els)
}

// Texts returns the text of each current match of loc. Nodes that detach
// while being read are skipped.
func (b *Base) Texts(ctx context.Context, loc locator.Locator) ([]string, error) {
	els, err := b.FindAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		t, err := el.Text(ctx)
		if err != nil {
			if driver.IsTransientLookup(err) {
				continue
			}
			return nil, fmt.Errorf("read text of %s: %w", loc, err)
		}
		texts = append(texts, t)
	}
	return texts, nil
}

// FindContaining returns the first current match of loc whose text contains
// text, ignoring case. The returned element is the node that was read, so a
// node detaching mid-scan cannot shift the choice onto a neighbour.
func (b *Base) FindContaining(ctx context.Context, loc locator.Locator, text string) (driver.Element, error) {
	els, err := b.FindAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(text)
	for _, el := range els {
		t, err := el.Text(ctx)
		if err != nil {
			if driver.IsTransientLookup(err) {
				continue
			}
			return nil, fmt.Errorf("read text of %s: %w", loc, err)
		}
		if strings.Contains(strings.ToLower(t), want) {
			return el, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrResultNotFound, text)
}

// WaitURLContains waits for the current URL to contain fragment.
func (b *Base) WaitURLContains(ctx context.Context, fragment string) error {
	return wait.Until(ctx, b.poller, wait.URLContains(b.session, fragment))
}

// WaitTitleContains waits for the document title to contain fragment.
func (b *Base) WaitTitleContains(ctx context.Context, fragment string) error {
	return wait.Until(ctx, b.poller, wait.TitleContains(b.session, fragment))
}

// WaitCountAtLeast waits until loc has at least n matches and returns the count.
func (b *Base) WaitCountAtLeast(ctx context.Context, loc locator.Locator, n int) (int, error) {
	return wait.Await(ctx, b.poller, wait.CountAtLeast(b.session, loc, n))
}

// WaitCountStable waits until the match count of loc stops changing over
// samples consecutive polls and returns it.
func (b *Base) WaitCountStable(ctx context.Context, loc locator.Locator, samples int) (int, error) {
	return wait.Await(ctx, b.poller, wait.CountStable(b.session, loc, samples))
}

// WaitAny waits until one of conds holds and returns its index.
func (b *Base) WaitAny(ctx context.Context, conds ...wait.Condition[bool]) (int, error) {
	return wait.Await(ctx, b.poller, wait.Any(conds...))
}

func (b *Base) CurrentURL(ctx context.Context) (string, error) {
	return b.session.CurrentURL(ctx)
}

func (b *Base) Title(ctx context.Context) (string, error) {
	return b.session.Title(ctx)
}

func (b *Base) NavigateTo(ctx context.Context, url string) error {
	b.logger.Debug("Navigate.", zap.String("url", url))
	return b.session.NavigateTo(ctx, url)
}

func (b *Base) Back(ctx context.Context) error {
	return b.session.Back(ctx)
}

func (b *Base) scroller() (driver.Scroller, error) {
	sc, ok := b.session.(driver.Scroller)
	if !ok {
		return nil, fmt.Errorf("%w: scrolling", driver.ErrUnsupported)
	}
	return sc, nil
}

func (b *Base) device() (driver.Device, error) {
	d, ok := b.session.(driver.Device)
	if !ok {
		return nil, fmt.Errorf("%w: device control", driver.ErrUnsupported)
	}
	return d, nil
}

// ScrollIntoView brings the first match of loc into the viewport.
func (b *Base) ScrollIntoView(ctx context.Context, loc locator.Locator) error {
	sc, err := b.scroller()
	if err != nil {
		return err
	}
	return sc.ScrollIntoView(ctx, loc)
}

// ScrollToText scrolls until a node containing text is on screen.
func (b *Base) ScrollToText(ctx context.Context, text string) error {
	sc, err := b.scroller()
	if err != nil {
		return err
	}
	return sc.ScrollToText(ctx, text)
}

// ScrollBy scrolls the viewport; positive values move down.
func (b *Base) ScrollBy(ctx context.Context, pixels int) error {
	sc, err := b.scroller()
	if err != nil {
		return err
	}
	return sc.ScrollBy(ctx, pixels)
}

// ScrollToEnd scrolls to the bottom of the page or list.
func (b *Base) ScrollToEnd(ctx context.Context) error {
	sc, err := b.scroller()
	if err != nil {
		return err
	}
	return sc.ScrollToEnd(ctx)
}

// HideKeyboard dismisses the soft keyboard if the platform has one. Errors
// are logged and dropped since the keyboard is often already hidden.
func (b *Base) HideKeyboard(ctx context.Context) {
	d, err := b.device()
	if err != nil {
		return
	}
	if err := d.HideSoftKeyboard(ctx); err != nil {
		b.logger.Debug("Keyboard not hidden.", zap.Error(err))
	}
}

// ActivateApp brings appID to the foreground.
func (b *Base) ActivateApp(ctx context.Context, appID string) error {
	d, err := b.device()
	if err != nil {
		return err
	}
	return d.ActivateApp(ctx, appID)
}

// TerminateApp stops appID.
func (b *Base) TerminateApp(ctx context.Context, appID string) error {
	d, err := b.device()
	if err != nil {
		return err
	}
	return d.TerminateApp(ctx, appID)
}

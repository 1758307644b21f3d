// Package sim provides in-process backends that model the Wikipedia website
// and the Wikipedia Android app. They implement the same session contract as
// the real drivers so page objects and scenarios run offline and in tests.
//
// The web model parses server-rendered HTML into an x/net/html tree and
// resolves locators with goquery (CSS) and htmlquery (XPath). The app model
// renders the view hierarchy for the current screen as UiAutomator-style XML
// with etree. Both can delay parts of a page to exercise waiting code.
package sim

import (
	"time"

	"go.uber.org/zap"
)

// Options configure a sim session.
type Options struct {
	// Latency delays asynchronously rendered content: search results,
	// suggestions and app result lists.
	Latency time.Duration
	// ImplicitWait is the client-side lookup budget applied by FindOne and FindAll.
	ImplicitWait time.Duration
	// PollInterval is the implicit lookup retry interval.
	PollInterval time.Duration
	// PageSize is the number of web search results per page.
	PageSize int
	// NoReset starts the app with onboarding already completed, as with the
	// Appium capability of the same name.
	NoReset bool
	// Corpus overrides the embedded article collection.
	Corpus *Corpus
	Logger *zap.Logger

	now func() time.Time
}

func (o Options) withDefaults() (Options, error) {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.Corpus == nil {
		c, err := DefaultCorpus()
		if err != nil {
			return o, err
		}
		o.Corpus = c
	}
	return o, nil
}

package cdp

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Supported browsers.
const (
	BrowserChrome = "chrome"
	BrowserEdge   = "edge"
)

// Options configure a Chromium session.
type Options struct {
	// Browser is "chrome" or "edge". It only matters when ExecPath is empty.
	Browser  string
	Headless bool
	ExecPath string
	// Args are extra command line switches, either "--flag" or "--flag=value".
	Args            []string
	WindowWidth     int
	WindowHeight    int
	PageLoadTimeout time.Duration
	// ImplicitWait is the client-side lookup budget for FindOne and FindAll.
	ImplicitWait time.Duration
	PollInterval time.Duration
	Logger       *zap.Logger
}

var edgeBinaries = []string{"microsoft-edge", "microsoft-edge-stable", "msedge"}

func (o Options) withDefaults() (Options, error) {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Browser == "" {
		o.Browser = BrowserChrome
	}
	if o.WindowWidth <= 0 || o.WindowHeight <= 0 {
		o.WindowWidth, o.WindowHeight = 1920, 1080
	}
	if o.PageLoadTimeout <= 0 {
		o.PageLoadTimeout = 30 * time.Second
	}
	switch o.Browser {
	case BrowserChrome:
	case BrowserEdge:
		if o.ExecPath == "" {
			path, err := lookPath(edgeBinaries)
			if err != nil {
				return o, err
			}
			o.ExecPath = path
		}
	default:
		return o, fmt.Errorf("cdp: unsupported browser %q", o.Browser)
	}
	return o, nil
}

func lookPath(names []string) (string, error) {
	for _, n := range names {
		if p, err := exec.LookPath(n); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("cdp: none of %s found in PATH", strings.Join(names, ", "))
}

// defaultFlags are always passed to the browser.
var defaultFlags = map[string]any{
	"disable-gpu":              true,
	"no-sandbox":               true,
	"disable-dev-shm-usage":    true,
	"enable-automation":        true,
	"no-first-run":             true,
	"no-default-browser-check": true,
}

// flags merges the defaults with the configured switches. Later entries win.
func (o Options) flags() map[string]any {
	out := make(map[string]any, len(defaultFlags)+len(o.Args)+2)
	for k, v := range defaultFlags {
		out[k] = v
	}
	if o.Headless {
		out["headless"] = true
		out["hide-scrollbars"] = true
		out["mute-audio"] = true
	}
	for _, arg := range o.Args {
		key, value, found := strings.Cut(arg, "=")
		key = strings.TrimLeft(key, "-")
		if key == "" {
			continue
		}
		if found {
			out[key] = value
		} else {
			out[key] = true
		}
	}
	return out
}

func (o Options) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.WindowSize(o.WindowWidth, o.WindowHeight),
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	for k, v := range o.flags() {
		opts = append(opts, chromedp.Flag(k, v))
	}
	return opts
}

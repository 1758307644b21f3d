package sim

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/beevik/etree"
)

// uiExpr is a parsed `new UiSelector()...` or `new UiScrollable(...)...` query.
type uiExpr struct {
	class string
	inner *uiExpr
	calls []uiCall
}

type uiCall struct {
	method string
	str    string
	num    int
	flag   bool
	sel    *uiExpr
}

type uiParser struct {
	s   scanner.Scanner
	tok rune
	src string
}

// parseUiQuery parses the subset of the UiAutomator query language the app
// model understands.
func parseUiQuery(src string) (*uiExpr, error) {
	p := &uiParser{src: src}
	p.s.Init(strings.NewReader(src))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanStrings
	p.s.Error = func(*scanner.Scanner, string) {}
	p.next()
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.tok == ';' {
		p.next()
	}
	if p.tok != scanner.EOF {
		return nil, p.errorf("unexpected %q", p.s.TokenText())
	}
	return e, nil
}

func (p *uiParser) next() { p.tok = p.s.Scan() }

func (p *uiParser) errorf(format string, args ...any) error {
	return fmt.Errorf("invalid UiSelector %q at %s: %s", p.src, p.s.Position, fmt.Sprintf(format, args...))
}

func (p *uiParser) expect(r rune) error {
	if p.tok != r {
		return p.errorf("expected %q, got %q", string(r), p.s.TokenText())
	}
	p.next()
	return nil
}

func (p *uiParser) expr() (*uiExpr, error) {
	if p.tok != scanner.Ident || p.s.TokenText() != "new" {
		return nil, p.errorf("expected new")
	}
	p.next()
	if p.tok != scanner.Ident {
		return nil, p.errorf("expected class name")
	}
	e := &uiExpr{class: p.s.TokenText()}
	if e.class != "UiSelector" && e.class != "UiScrollable" {
		return nil, p.errorf("unsupported class %s", e.class)
	}
	p.next()
	if err := p.expect('('); err != nil {
		return nil, err
	}
	if p.tok != ')' {
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		e.inner = inner
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	for p.tok == '.' {
		p.next()
		if p.tok != scanner.Ident {
			return nil, p.errorf("expected method name")
		}
		call := uiCall{method: p.s.TokenText()}
		p.next()
		if err := p.expect('('); err != nil {
			return nil, err
		}
		switch p.tok {
		case ')':
		case scanner.String:
			s, err := strconv.Unquote(p.s.TokenText())
			if err != nil {
				return nil, p.errorf("bad string %s", p.s.TokenText())
			}
			call.str = s
			p.next()
		case scanner.Int:
			call.num, _ = strconv.Atoi(p.s.TokenText())
			p.next()
		case scanner.Ident:
			switch p.s.TokenText() {
			case "true":
				call.flag = true
				p.next()
			case "false":
				p.next()
			default:
				sel, err := p.expr()
				if err != nil {
					return nil, err
				}
				call.sel = sel
			}
		default:
			return nil, p.errorf("unexpected argument %q", p.s.TokenText())
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		e.calls = append(e.calls, call)
	}
	return e, nil
}

// matches reports whether el satisfies every filter of a UiSelector.
// instance() is applied by the caller.
func (e *uiExpr) matches(el *etree.Element) (bool, error) {
	attr := func(k string) string { return el.SelectAttrValue(k, "") }
	for _, c := range e.calls {
		var ok bool
		switch c.method {
		case "className":
			ok = el.Tag == c.str
		case "classNameMatches":
			re, err := regexp.Compile(c.str)
			if err != nil {
				return false, fmt.Errorf("invalid classNameMatches pattern: %w", err)
			}
			ok = re.MatchString(el.Tag)
		case "resourceId":
			ok = attr("resource-id") == c.str
		case "resourceIdMatches":
			re, err := regexp.Compile(c.str)
			if err != nil {
				return false, fmt.Errorf("invalid resourceIdMatches pattern: %w", err)
			}
			ok = re.MatchString(attr("resource-id"))
		case "text":
			ok = attr("text") == c.str
		case "textContains":
			ok = strings.Contains(attr("text"), c.str)
		case "textStartsWith":
			ok = strings.HasPrefix(attr("text"), c.str)
		case "description":
			ok = attr("content-desc") == c.str
		case "descriptionContains":
			ok = strings.Contains(attr("content-desc"), c.str)
		case "clickable", "scrollable", "enabled", "focused", "selected", "checked":
			ok = (attr(c.method) == "true") == c.flag
		case "instance", "index":
			ok = true
		default:
			return false, fmt.Errorf("unsupported UiSelector method %s", c.method)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// instance returns the instance() argument, or -1.
func (e *uiExpr) instance() int {
	for _, c := range e.calls {
		if c.method == "instance" {
			return c.num
		}
	}
	return -1
}

// selectAll evaluates a UiSelector against every element under root in
// document order.
func (e *uiExpr) selectAll(root *etree.Element) ([]*etree.Element, error) {
	if e.class != "UiSelector" {
		return nil, fmt.Errorf("%s is not a selector", e.class)
	}
	var out []*etree.Element
	for _, el := range root.FindElements("//*") {
		ok, err := e.matches(el)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, el)
		}
	}
	if i := e.instance(); i >= 0 {
		if i >= len(out) {
			return nil, nil
		}
		return out[i : i+1], nil
	}
	return out, nil
}

// scrollTarget extracts what a UiScrollable query scrolls to: either an inner
// selector or a text.
func (e *uiExpr) scrollTarget() (*uiExpr, error) {
	for _, c := range e.calls {
		switch c.method {
		case "scrollIntoView", "getChildByText":
			if c.sel != nil {
				return c.sel, nil
			}
		case "scrollTextIntoView":
			return &uiExpr{class: "UiSelector", calls: []uiCall{{method: "textContains", str: c.str}}}, nil
		}
	}
	return nil, fmt.Errorf("UiScrollable query has no scroll target")
}

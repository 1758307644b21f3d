package webdriver

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
)

// Error is an error response from a WebDriver or Appium server.
type Error struct {
	// Code is the W3C error code, e.g. "no such element".
	Code    string `json:"error"`
	Message string `json:"message"`
	// Status is the HTTP status of the response.
	Status int `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if msg == "" {
		return fmt.Sprintf("webdriver: %s (HTTP %d)", e.Code, e.Status)
	}
	return fmt.Sprintf("webdriver: %s: %s", e.Code, msg)
}

var codeErrors = map[string]error{
	"no such element":           driver.ErrNoSuchElement,
	"stale element reference":   driver.ErrStaleElement,
	"element not interactable":  driver.ErrElementNotInteractable,
	"element click intercepted": driver.ErrElementNotInteractable,
	"invalid element state":     driver.ErrElementNotInteractable,
	"invalid session id":        driver.ErrSessionClosed,
	"unknown command":           driver.ErrUnsupported,
	"unknown method":            driver.ErrUnsupported,
	"unsupported operation":     driver.ErrUnsupported,
}

// Unwrap maps the code onto the driver taxonomy so errors.Is works.
func (e *Error) Unwrap() error {
	return codeErrors[e.Code]
}

type errorEnvelope struct {
	Value *Error `json:"value"`
}

// decodeError builds an *Error from a non-2xx response body. Bodies that are
// not W3C error objects still yield an *Error carrying the HTTP status.
func decodeError(status int, body []byte) *Error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Value != nil && env.Value.Code != "" {
		env.Value.Status = status
		return env.Value
	}
	e := &Error{Code: "unknown error", Status: status}
	switch status {
	case http.StatusNotFound:
		e.Code = "unknown command"
	case http.StatusMethodNotAllowed:
		e.Code = "unknown method"
	}
	e.Message = truncate(strings.TrimSpace(string(body)), maxBodyMessage)
	return e
}

// maxBodyMessage bounds how much of a non-W3C body ends up in an error.
const maxBodyMessage = 200

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

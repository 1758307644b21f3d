// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

// -- Session Mock --

// MockSession mocks driver.Session together with the optional Scroller and
// Device capabilities, so screen code can be tested against either platform.
type MockSession struct {
	mock.Mock
}

// NewMockSession returns an empty MockSession.
func NewMockSession() *MockSession {
	return &MockSession{}
}

var (
	_ driver.Session  = (*MockSession)(nil)
	_ driver.Scroller = (*MockSession)(nil)
	_ driver.Device   = (*MockSession)(nil)
)

func (m *MockSession) FindOne(ctx context.Context, loc locator.Locator) (driver.Element, error) {
	args := m.Called(ctx, loc)
	el, _ := args.Get(0).(driver.Element)
	return el, args.Error(1)
}

func (m *MockSession) FindAll(ctx context.Context, loc locator.Locator) ([]driver.Element, error) {
	args := m.Called(ctx, loc)
	els, _ := args.Get(0).([]driver.Element)
	return els, args.Error(1)
}

func (m *MockSession) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSession) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSession) NavigateTo(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockSession) Back(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSession) Source(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSession) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- Scroller ---

func (m *MockSession) ScrollIntoView(ctx context.Context, loc locator.Locator) error {
	return m.Called(ctx, loc).Error(0)
}

func (m *MockSession) ScrollToText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockSession) ScrollBy(ctx context.Context, pixels int) error {
	return m.Called(ctx, pixels).Error(0)
}

func (m *MockSession) ScrollToEnd(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- Device ---

func (m *MockSession) HideSoftKeyboard(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSession) ActivateApp(ctx context.Context, appID string) error {
	return m.Called(ctx, appID).Error(0)
}

func (m *MockSession) TerminateApp(ctx context.Context, appID string) error {
	return m.Called(ctx, appID).Error(0)
}

// -- Element Mock --

// MockElement mocks driver.Element.
type MockElement struct {
	mock.Mock
}

var (
	_ driver.Element        = (*MockElement)(nil)
	_ driver.OptionSelector = (*MockElement)(nil)
)

func (m *MockElement) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElement) Attribute(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *MockElement) Displayed(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) Enabled(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) Click(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockElement) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockElement) SendKeys(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockElement) SelectOption(ctx context.Context, value string) error {
	return m.Called(ctx, value).Error(0)
}

// VisibleElement returns a MockElement that reports displayed and enabled on
// every call, a common starting point for action tests.
func VisibleElement() *MockElement {
	el := new(MockElement)
	el.On("Displayed", mock.Anything).Return(true, nil).Maybe()
	el.On("Enabled", mock.Anything).Return(true, nil).Maybe()
	return el
}

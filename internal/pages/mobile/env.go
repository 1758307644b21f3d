// Package mobile holds the screen objects for the Wikipedia Android app.
//
// Locators use short resource ids; drivers qualify them with the app package.
// Methods that move to another screen wait for it before returning.
package mobile

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/screen"
	"github.com/xkilldash9x/wikiprobe/internal/wait"
)

// Env is what every screen constructor needs.
type Env struct {
	Session driver.Session
	Poller  *wait.Poller
	Logger  *zap.Logger
	// AppPackage is the application id, org.wikipedia by default.
	AppPackage string
}

func (e Env) base(name string) *screen.Base {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return screen.NewBase(e.Session, e.Poller, logger, name)
}

// DefaultAppPackage is the Wikipedia app's application id.
const DefaultAppPackage = "org.wikipedia"

func (e Env) appPackage() string {
	if e.AppPackage == "" {
		return DefaultAppPackage
	}
	return e.AppPackage
}

// scrollDistance is roughly half a phone screen.
const scrollDistance = 1200

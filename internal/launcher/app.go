package launcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
)

func (m *Manager) device(s *Session) (driver.Device, error) {
	if s.kind != KindMobile {
		return nil, fmt.Errorf("%w: app lifecycle on a %s session", driver.ErrUnsupported, s.kind)
	}
	d, ok := s.drv.(driver.Device)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no device commands", driver.ErrUnsupported, s.backend)
	}
	return d, nil
}

// LaunchApp brings the app under test to the foreground.
func (m *Manager) LaunchApp(ctx context.Context, s *Session) error {
	d, err := m.device(s)
	if err != nil {
		return err
	}
	pkg := m.cfg.Mobile.AppPackage
	if err := d.ActivateApp(ctx, pkg); err != nil {
		return fmt.Errorf("activate %s: %w", pkg, err)
	}
	return nil
}

// CloseApp stops the app under test without ending the session.
func (m *Manager) CloseApp(ctx context.Context, s *Session) error {
	d, err := m.device(s)
	if err != nil {
		return err
	}
	pkg := m.cfg.Mobile.AppPackage
	if err := d.TerminateApp(ctx, pkg); err != nil {
		return fmt.Errorf("terminate %s: %w", pkg, err)
	}
	return nil
}

// RestartApp terminates and relaunches the app.
func (m *Manager) RestartApp(ctx context.Context, s *Session) error {
	m.logger.Info("Restarting app.",
		zap.String("session_id", s.id),
		zap.String("package", m.cfg.Mobile.AppPackage),
	)
	if err := m.CloseApp(ctx, s); err != nil {
		return err
	}
	return m.LaunchApp(ctx, s)
}

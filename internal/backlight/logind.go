// SPDX-License-Identifier: GPL-3.0-only

package backlight

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	logindService = "org.freedesktop.login1"
	sessionPath   = "/org/freedesktop/login1/session/auto"
	setBrightness = "org.freedesktop.login1.Session.SetBrightness"
)

// Logind writes brightness through systemd-logind, which lets the owner of
// the active session change the backlight without write access to sysfs.
type Logind struct {
	conn *dbus.Conn
}

var _ Writer = (*Logind)(nil)

// NewLogind connects to the system bus.
func NewLogind() (*Logind, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return &Logind{conn: conn}, nil
}

// SetBrightness calls Session.SetBrightness on the caller's session.
func (l *Logind) SetBrightness(subsystem, name string, value uint32) error {
	call := l.conn.Object(logindService, sessionPath).Call(setBrightness, 0, subsystem, name, value)
	if call.Err != nil {
		return fmt.Errorf("logind SetBrightness(%s, %s, %d): %w", subsystem, name, value, call.Err)
	}
	log.Trace().Str("device", name).Uint32("value", value).Msg("Set brightness via logind")
	return nil
}

// Close closes the system bus connection.
func (l *Logind) Close() error {
	return l.conn.Close()
}

package notify

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"

	logx "neuroboost/pkg/logx"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = "org.freedesktop.Notifications.Notify"
)

// desktopRoute shows notifications through the freedesktop notification
// daemon on the session bus. The bus connection is opened lazily so a
// headless start does not fail until a send is attempted.
type desktopRoute struct {
	log logx.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

func newDesktopRoute(log logx.Logger) Route { return &desktopRoute{log: log} }

func (r *desktopRoute) Name() string { return "desktop" }

func (r *desktopRoute) connect() (*dbus.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn, nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	r.conn = conn
	return conn, nil
}

func (r *desktopRoute) Send(ctx context.Context, n Notification) error {
	conn, err := r.connect()
	if err != nil {
		return err
	}

	// Notify(app_name, replaces_id, app_icon, summary, body, actions,
	// hints, expire_timeout). replaces_id 0 means a new bubble; expire
	// timeout -1 leaves the choice to the daemon.
	obj := conn.Object(notifyDest, notifyPath)
	call := obj.CallWithContext(ctx, notifyMethod, 0,
		"neuroboost", uint32(0), "", n.Title, n.Body,
		[]string{}, map[string]dbus.Variant{}, int32(-1))
	if call.Err != nil {
		// Drop the cached connection; the daemon may have restarted.
		r.mu.Lock()
		if r.conn != nil {
			_ = r.conn.Close()
			r.conn = nil
		}
		r.mu.Unlock()
		return call.Err
	}
	return nil
}

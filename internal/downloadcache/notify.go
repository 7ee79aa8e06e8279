package downloadcache

import "github.com/toolchain-dist/tooldist/internal/notify"

// notifyHandler is the single-method shape of notify.Handler. Cache
// itself stores a notify.Handler; nothing in this package refers to
// notifyHandler.
type notifyHandler interface {
	Notify(notify.Event)
}

package ports

import "github.com/fieldops/livetrack/internal/core/domain"

// Notifier is the outbound event port. The mutation side emits domain
// events through this interface and never touches the transport layer; the
// realtime bus implements it. Delivery is at-most-once and fire-and-forget:
// publishing to an identity with no live connections is a silent no-op and
// there is no error to return.
type Notifier interface {
	Publish(identity int64, kind domain.EventKind, payload any)
}

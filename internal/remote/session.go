package remote

import (
	"context"
	"time"
)

// SessionRefresher renews the authenticated session after the backend rejected a token.
type SessionRefresher interface {
	Refresh(ctx context.Context) error
}

// Identity reports the currently authenticated actor.
type Identity interface {
	// CurrentUserID returns the actor id and false when nobody is signed in.
	CurrentUserID() (string, bool)
}

// StaticIdentity is an Identity fixed at construction, used by service accounts and tests.
type StaticIdentity string

// CurrentUserID implements Identity.
func (s StaticIdentity) CurrentUserID() (string, bool) {
	return string(s), s != ""
}

// ChangeType is the kind of row change carried by a realtime event.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is one realtime row event.
type Change struct {
	Table      string
	Type       ChangeType
	Record     []byte // JSON of the new row (old row for deletes)
	ReceivedAt time.Time
}

// Subscriber delivers realtime changes for rows of a table matching the filters.
// The returned channel is closed when ctx is done or the subscription fails.
type Subscriber interface {
	Subscribe(ctx context.Context, table string, filters []Filter) (<-chan Change, error)
}

// Uploader stores an opaque blob and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

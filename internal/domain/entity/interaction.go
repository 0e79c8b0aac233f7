package entity

// Operation names a per-entity interaction such as a like or a bookmark.
type Operation string

const (
	OperationLike     Operation = "like"
	OperationBookmark Operation = "bookmark"
)

// InteractionKey identifies one (entity, operation) pair for deduplication and
// rate-limit bookkeeping.
type InteractionKey struct {
	EntityID  string
	Operation Operation
}

// String renders the key as "operation:entity".
func (k InteractionKey) String() string {
	return string(k.Operation) + ":" + k.EntityID
}

// InteractionState is the locally cached view of one entity's interaction.
// It is created lazily and discarded with its owning manager; it is never persisted.
type InteractionState struct {
	IsActive bool
	Count    int
	Loading  bool
	Error    string
}

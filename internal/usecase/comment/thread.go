package comment

import "feedsync/internal/domain/entity"

// Phase is the load state of a thread.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseReady
	PhaseErrored
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Thread is the local view of one post's comments in ascending creation order.
//
// Busy is set while an append or remove is outstanding. The list stays in place
// during reloads and mutations so readers never observe an empty flicker.
type Thread struct {
	PostID   string
	Phase    Phase
	Comments []entity.Comment
	Busy     bool
	Error    string
}

func (t *Thread) clone() Thread {
	out := *t
	out.Comments = append([]entity.Comment(nil), t.Comments...)
	return out
}

func (t *Thread) indexOf(commentID string) int {
	for i := range t.Comments {
		if t.Comments[i].ID == commentID {
			return i
		}
	}
	return -1
}

// Package comment manages post comment threads: ordered listing with batched
// author resolution, append with local author rendering and a best-effort
// owner notification, and owner-scoped removal.
package comment

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"feedsync/internal/domain/entity"
	"feedsync/internal/remote"
	"feedsync/internal/usecase/execute"
)

const (
	commentsTable = "comments"
	profilesTable = "profiles"
	postsTable    = "posts"
)

// OwnerNotifier informs a post owner about a new comment.
// It is satisfied by *notify.Dispatcher.
type OwnerNotifier interface {
	Send(ctx context.Context, in entity.NotificationInput) (*entity.Notification, error)
}

// Config holds Manager settings.
type Config struct {
	Logger *slog.Logger
}

// Manager owns the comment threads opened by one client. It is safe for concurrent use.
type Manager struct {
	store    remote.Store
	exec     *execute.Executor
	identity remote.Identity
	notifier OwnerNotifier
	logger   *slog.Logger

	mu      sync.Mutex
	threads map[string]*Thread
	self    *entity.Author
}

// NewManager creates a comment manager. notifier may be nil.
func NewManager(store remote.Store, exec *execute.Executor, identity remote.Identity, notifier OwnerNotifier, cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		store:    store,
		exec:     exec,
		identity: identity,
		notifier: notifier,
		logger:   cfg.Logger.With(slog.String("component", "comment")),
		threads:  make(map[string]*Thread),
	}
}

// update mutates the thread for postID under the lock and returns a copy.
func (m *Manager) update(postID string, fn func(t *Thread)) Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[postID]
	if !ok {
		t = &Thread{PostID: postID}
		m.threads[postID] = t
	}
	fn(t)
	return t.clone()
}

// Thread returns a copy of the local thread for postID.
func (m *Manager) Thread(postID string) Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.threads[postID]; ok {
		return t.clone()
	}
	return Thread{PostID: postID}
}

// Forget discards the local thread for postID.
func (m *Manager) Forget(postID string) {
	m.mu.Lock()
	delete(m.threads, postID)
	m.mu.Unlock()
}

// List loads the comments of postID in ascending creation order and resolves
// their authors with one batched lookup.
//
// A failed author lookup leaves Author nil on the affected comments; the
// thread still becomes Ready.
func (m *Manager) List(ctx context.Context, postID string) ([]entity.Comment, error) {
	m.update(postID, func(t *Thread) {
		t.Phase = PhaseLoading
		t.Error = ""
	})

	comments, err := execute.Do(ctx, m.exec, "comment.list", func(ctx context.Context) ([]entity.Comment, error) {
		resp, err := m.store.Select(ctx, remote.Query{
			Table:   commentsTable,
			Filters: []remote.Filter{remote.Eq("post_id", postID)},
			Order:   &remote.Order{Column: "created_at", Ascending: true},
		})
		if err != nil {
			return nil, err
		}
		return remote.DecodeRows[entity.Comment](resp)
	})
	if err != nil {
		m.update(postID, func(t *Thread) {
			t.Phase = PhaseErrored
			t.Error = execute.UserMessage(err)
		})
		recordList("failure")
		return nil, err
	}

	m.resolveAuthors(ctx, comments)

	t := m.update(postID, func(t *Thread) {
		t.Phase = PhaseReady
		t.Comments = comments
		t.Error = ""
	})
	recordList("success")
	return t.Comments, nil
}

// resolveAuthors fills Author for every comment from a single profiles query
// over the distinct author ids.
func (m *Manager) resolveAuthors(ctx context.Context, comments []entity.Comment) {
	ids := make([]string, 0, len(comments))
	seen := make(map[string]struct{}, len(comments))
	for _, c := range comments {
		if _, ok := seen[c.AuthorID]; ok || c.AuthorID == "" {
			continue
		}
		seen[c.AuthorID] = struct{}{}
		ids = append(ids, c.AuthorID)
	}
	if len(ids) == 0 {
		return
	}

	authors, err := execute.Do(ctx, m.exec, "comment.authors", func(ctx context.Context) ([]entity.Author, error) {
		resp, err := m.store.Select(ctx, remote.Query{
			Table:   profilesTable,
			Filters: []remote.Filter{remote.In("id", ids)},
		})
		if err != nil {
			return nil, err
		}
		return remote.DecodeRows[entity.Author](resp)
	}, execute.Silent())
	if err != nil {
		m.logger.Warn("author lookup failed",
			slog.Int("authors", len(ids)),
			slog.Any("error", err))
		return
	}

	byID := make(map[string]*entity.Author, len(authors))
	for i := range authors {
		byID[authors[i].ID] = &authors[i]
	}
	for i := range comments {
		comments[i].Author = byID[comments[i].AuthorID]
	}
}

// ownAuthor returns the signed-in user's author data, fetched once and cached.
// A failed lookup yields a bare author carrying only the id.
func (m *Manager) ownAuthor(ctx context.Context, userID string) *entity.Author {
	m.mu.Lock()
	if m.self != nil && m.self.ID == userID {
		a := *m.self
		m.mu.Unlock()
		return &a
	}
	m.mu.Unlock()

	author, err := execute.Do(ctx, m.exec, "comment.self", func(ctx context.Context) (entity.Author, error) {
		resp, err := m.store.Select(ctx, remote.Query{
			Table:   profilesTable,
			Filters: []remote.Filter{remote.Eq("id", userID)},
			Limit:   1,
		})
		if err != nil {
			return entity.Author{}, err
		}
		return remote.DecodeOne[entity.Author](resp)
	}, execute.Silent())
	if err != nil {
		m.logger.Debug("own author lookup failed", slog.Any("error", err))
		return &entity.Author{ID: userID}
	}

	m.mu.Lock()
	m.self = &author
	m.mu.Unlock()
	a := author
	return &a
}

// beginMutation checks the thread is Ready and marks it busy.
func (m *Manager) beginMutation(postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[postID]
	if !ok || t.Phase != PhaseReady {
		return ErrThreadNotReady
	}
	t.Busy = true
	t.Error = ""
	return nil
}

// Append persists a new comment on postID and adds it to the local thread.
// The thread owner is notified best-effort; a failed notification never fails the append.
func (m *Manager) Append(ctx context.Context, postID, body string) (*entity.Comment, error) {
	in := entity.CommentInput{PostID: postID, Body: body}
	if err := entity.Validate(in); err != nil {
		recordMutation("append", "rejected")
		return nil, err
	}

	userID, ok := m.identity.CurrentUserID()
	if !ok {
		recordMutation("append", "rejected")
		return nil, ErrAuthRequired
	}

	if err := m.beginMutation(postID); err != nil {
		recordMutation("append", "rejected")
		return nil, err
	}

	created, err := execute.Do(ctx, m.exec, "comment.append", func(ctx context.Context) (entity.Comment, error) {
		resp, err := m.store.Insert(ctx, commentsTable, map[string]any{
			"post_id":   postID,
			"author_id": userID,
			"body":      body,
		})
		if err != nil {
			return entity.Comment{}, err
		}
		return remote.DecodeOne[entity.Comment](resp)
	})
	if err != nil {
		m.update(postID, func(t *Thread) {
			t.Busy = false
			t.Error = execute.UserMessage(err)
		})
		recordMutation("append", "failure")
		return nil, err
	}

	created.Author = m.ownAuthor(ctx, userID)

	m.update(postID, func(t *Thread) {
		t.Busy = false
		t.Comments = append(t.Comments, created)
		slices.SortStableFunc(t.Comments, func(a, b entity.Comment) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	})
	recordMutation("append", "success")

	m.notifyOwner(ctx, postID, userID, created)
	return &created, nil
}

// notifyOwner tells the post owner about a new comment unless the owner wrote it.
func (m *Manager) notifyOwner(ctx context.Context, postID, userID string, c entity.Comment) {
	if m.notifier == nil {
		recordOwnerNotification("skipped")
		return
	}

	owner, err := execute.Do(ctx, m.exec, "comment.owner", func(ctx context.Context) (string, error) {
		resp, err := m.store.Select(ctx, remote.Query{
			Table:   postsTable,
			Columns: []string{"id", "author_id"},
			Filters: []remote.Filter{remote.Eq("id", postID)},
			Limit:   1,
		})
		if err != nil {
			return "", err
		}
		post, err := remote.DecodeOne[entity.Post](resp)
		return post.AuthorID, err
	}, execute.Silent(), execute.WithMaxRetries(0))
	if err != nil {
		recordOwnerNotification("failed")
		m.logger.Warn("post owner lookup failed", slog.String("post_id", postID), slog.Any("error", err))
		return
	}
	if owner == "" || owner == userID {
		recordOwnerNotification("skipped")
		return
	}

	name := "Someone"
	if c.Author != nil && c.Author.DisplayName != "" {
		name = c.Author.DisplayName
	}
	_, err = m.notifier.Send(ctx, entity.NotificationInput{
		RecipientID: owner,
		Title:       "New comment",
		Body:        fmt.Sprintf("%s commented on your post", name),
		Type:        entity.NotificationTypeComment,
		Data:        map[string]any{"post_id": postID, "comment_id": c.ID},
	})
	if err != nil {
		recordOwnerNotification("failed")
		m.logger.Warn("comment notification failed",
			slog.String("post_id", postID),
			slog.String("recipient_id", owner),
			slog.Any("error", err))
		return
	}
	recordOwnerNotification("sent")
}

// threadOf returns the id of the loaded thread holding commentID.
func (m *Manager) threadOf(commentID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.threads {
		if t.indexOf(commentID) >= 0 {
			return id, true
		}
	}
	return "", false
}

// Remove deletes commentID, scoped to the signed-in author, and drops it from
// the local thread once the backend confirms.
func (m *Manager) Remove(ctx context.Context, commentID string) error {
	userID, ok := m.identity.CurrentUserID()
	if !ok {
		recordMutation("remove", "rejected")
		return ErrAuthRequired
	}

	postID, ok := m.threadOf(commentID)
	if !ok {
		recordMutation("remove", "rejected")
		return fmt.Errorf("%w: %s", ErrCommentNotFound, commentID)
	}
	if err := m.beginMutation(postID); err != nil {
		recordMutation("remove", "rejected")
		return err
	}

	_, err := execute.Do(ctx, m.exec, "comment.remove", func(ctx context.Context) (struct{}, error) {
		resp, err := m.store.Delete(ctx, remote.Query{
			Table: commentsTable,
			Filters: []remote.Filter{
				remote.Eq("id", commentID),
				remote.Eq("author_id", userID),
			},
		})
		if err != nil {
			return struct{}{}, err
		}
		if resp != nil && resp.Data != nil {
			rows, err := remote.DecodeRows[entity.Comment](resp)
			if err != nil {
				return struct{}{}, err
			}
			if len(rows) == 0 {
				return struct{}{}, fmt.Errorf("%w: %w", ErrNotDeleted, &remote.Error{Status: http.StatusForbidden, Message: "no row matched"})
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		m.update(postID, func(t *Thread) {
			t.Busy = false
			t.Error = execute.UserMessage(err)
		})
		recordMutation("remove", "failure")
		return err
	}

	m.update(postID, func(t *Thread) {
		t.Busy = false
		if i := t.indexOf(commentID); i >= 0 {
			t.Comments = slices.Delete(t.Comments, i, i+1)
		}
	})
	recordMutation("remove", "success")
	return nil
}

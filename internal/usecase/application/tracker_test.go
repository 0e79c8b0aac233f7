package application

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"feedsync/internal/domain/entity"
	"feedsync/internal/infra/netprobe"
	"feedsync/internal/remote"
	"feedsync/internal/resilience/retry"
	"feedsync/internal/usecase/execute"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	inserts []map[string]any
	updates []remote.Query

	selectFn func(q remote.Query) (*remote.Response, error)
	insertFn func(row map[string]any) (*remote.Response, error)
	updateFn func(q remote.Query, values map[string]any) (*remote.Response, error)
}

func (s *fakeStore) Select(ctx context.Context, q remote.Query) (*remote.Response, error) {
	return s.selectFn(q)
}

func (s *fakeStore) Insert(ctx context.Context, table string, row map[string]any) (*remote.Response, error) {
	s.mu.Lock()
	s.inserts = append(s.inserts, row)
	s.mu.Unlock()
	return s.insertFn(row)
}

func (s *fakeStore) Update(ctx context.Context, q remote.Query, values map[string]any) (*remote.Response, error) {
	s.mu.Lock()
	s.updates = append(s.updates, q)
	s.mu.Unlock()
	return s.updateFn(q, values)
}

func (s *fakeStore) Delete(ctx context.Context, q remote.Query) (*remote.Response, error) {
	return nil, errors.New("not implemented")
}

type uploaderFunc func(ctx context.Context, name string, data []byte, contentType string) (string, error)

func (f uploaderFunc) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	return f(ctx, name, data, contentType)
}

type fakeNotifier struct {
	mu     sync.Mutex
	inputs []entity.NotificationInput
	err    error
}

func (n *fakeNotifier) Send(ctx context.Context, in entity.NotificationInput) (*entity.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inputs = append(n.inputs, in)
	return &entity.Notification{}, n.err
}

func jsonRows(t *testing.T, v any) *remote.Response {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return &remote.Response{Data: data}
}

var now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

// newBackend serves job J1 owned by "employer" and echoes inserts and updates.
func newBackend(t *testing.T) *fakeStore {
	s := &fakeStore{}
	s.selectFn = func(q remote.Query) (*remote.Response, error) {
		switch q.Table {
		case postsTable:
			return jsonRows(t, []entity.Post{{ID: "J1", AuthorID: "employer", Kind: entity.PostKindJob}}), nil
		case applicationsTable:
			return jsonRows(t, []entity.Application{
				{ID: "a2", JobID: "J1", ApplicantID: "cand", Status: entity.ApplicationReviewing, CreatedAt: now.Add(time.Hour)},
				{ID: "a1", JobID: "J1", ApplicantID: "other", Status: entity.ApplicationPending, CreatedAt: now},
			}), nil
		}
		return nil, &remote.Error{Status: http.StatusNotFound}
	}
	s.insertFn = func(row map[string]any) (*remote.Response, error) {
		app := entity.Application{
			ID:          "a9",
			JobID:       row["job_id"].(string),
			ApplicantID: row["applicant_id"].(string),
			Status:      entity.ApplicationStatus(row["status"].(string)),
			CreatedAt:   now,
		}
		if u, ok := row["resume_url"].(string); ok {
			app.ResumeURL = u
		}
		return jsonRows(t, []entity.Application{app}), nil
	}
	s.updateFn = func(q remote.Query, values map[string]any) (*remote.Response, error) {
		app := entity.Application{JobID: "J1", Status: entity.ApplicationStatus(values["status"].(string))}
		for _, f := range q.Filters {
			if f.Column == "id" {
				app.ID = f.Value.(string)
			}
		}
		app.ApplicantID = map[string]string{"a1": "other", "a2": "cand"}[app.ID]
		return jsonRows(t, []entity.Application{app}), nil
	}
	return s
}

func newExecutor() *execute.Executor {
	return execute.New(execute.Config{
		AttemptTimeout: time.Second,
		Policy:         retry.Policy{MaxRetries: 0},
	}, execute.Deps{Prober: netprobe.Online})
}

func newRetryingTracker(store remote.Store, user string) *Tracker {
	exec := execute.New(execute.Config{
		AttemptTimeout: time.Second,
		Policy:         retry.Policy{MaxRetries: 2},
	}, execute.Deps{Prober: netprobe.Online})
	return NewTracker(store, exec, remote.StaticIdentity(user), nil, &fakeNotifier{}, Config{})
}

// committedThenLost fails the first update after the row already moved to
// serverStatus; later updates match nothing because the guard is stale.
func committedThenLost(t *testing.T, store *fakeStore, serverStatus entity.ApplicationStatus) {
	loadAll := store.selectFn
	attempts := 0
	store.updateFn = func(remote.Query, map[string]any) (*remote.Response, error) {
		attempts++
		if attempts == 1 {
			return nil, &remote.Error{Status: http.StatusBadGateway, Message: "connection reset"}
		}
		return &remote.Response{Data: json.RawMessage(`[]`)}, nil
	}
	store.selectFn = func(q remote.Query) (*remote.Response, error) {
		if q.Table == applicationsTable && q.Limit == 1 {
			assert.Contains(t, q.Filters, remote.Eq("id", "a2"))
			return jsonRows(t, []entity.Application{
				{ID: "a2", JobID: "J1", ApplicantID: "cand", Status: serverStatus},
			}), nil
		}
		return loadAll(q)
	}
}

func newTracker(store remote.Store, user string, up remote.Uploader, n Notifier) *Tracker {
	noRetry := retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}
	return NewTracker(store, newExecutor(), remote.StaticIdentity(user), up, n, Config{UploadPolicy: &noRetry})
}

func TestSubmit_UploadsResumeAndNotifiesOwner(t *testing.T) {
	store := newBackend(t)
	n := &fakeNotifier{}
	var uploadedName string
	up := uploaderFunc(func(ctx context.Context, name string, data []byte, contentType string) (string, error) {
		uploadedName = name
		assert.Equal(t, "application/pdf", contentType)
		return "https://cdn.example.com/" + name, nil
	})
	tr := newTracker(store, "cand", up, n)

	app, err := tr.Submit(context.Background(), entity.ApplicationInput{
		JobID:       "J1",
		CoverLetter: "hello",
		Resume:      []byte("%PDF"),
		ContentType: "application/pdf",
	})

	require.NoError(t, err)
	assert.Equal(t, entity.ApplicationPending, app.Status)
	assert.True(t, strings.HasPrefix(uploadedName, "resumes/cand/"))
	assert.Equal(t, "https://cdn.example.com/"+uploadedName, app.ResumeURL)
	assert.Equal(t, "hello", store.inserts[0]["cover_letter"])

	cached, ok := tr.Application("a9")
	require.True(t, ok)
	assert.Equal(t, "cand", cached.ApplicantID)

	require.Len(t, n.inputs, 1)
	assert.Equal(t, "employer", n.inputs[0].RecipientID)
	assert.Equal(t, entity.NotificationTypeApplication, n.inputs[0].Type)
}

func TestSubmit_UploadRetriesThenFails(t *testing.T) {
	store := newBackend(t)
	attempts := 0
	up := uploaderFunc(func(context.Context, string, []byte, string) (string, error) {
		attempts++
		return "", errors.New("connection reset")
	})
	tr := newTracker(store, "cand", up, nil)

	_, err := tr.Submit(context.Background(), entity.ApplicationInput{
		JobID:       "J1",
		Resume:      []byte("x"),
		ContentType: "application/pdf",
	})

	require.Error(t, err)
	assert.Equal(t, execute.KindNetwork, execute.KindOf(err))
	assert.Equal(t, 2, attempts)
	assert.Empty(t, store.inserts, "no row without a resume URL")
}

func TestSubmit_Duplicate(t *testing.T) {
	store := newBackend(t)
	store.insertFn = func(map[string]any) (*remote.Response, error) {
		return nil, &remote.Error{Status: http.StatusConflict, Code: "23505"}
	}
	tr := newTracker(store, "cand", nil, nil)

	_, err := tr.Submit(context.Background(), entity.ApplicationInput{JobID: "J1"})

	assert.ErrorIs(t, err, ErrAlreadyApplied)
}

func TestSubmit_NotificationFailureIsSwallowed(t *testing.T) {
	store := newBackend(t)
	tr := newTracker(store, "cand", nil, &fakeNotifier{err: errors.New("down")})

	app, err := tr.Submit(context.Background(), entity.ApplicationInput{JobID: "J1"})

	require.NoError(t, err)
	assert.Equal(t, "a9", app.ID)
}

func TestSubmit_Rejections(t *testing.T) {
	store := newBackend(t)

	_, err := newTracker(store, "cand", nil, nil).Submit(context.Background(), entity.ApplicationInput{})
	assert.ErrorIs(t, err, entity.ErrValidationFailed)

	_, err = newTracker(store, "", nil, nil).Submit(context.Background(), entity.ApplicationInput{JobID: "J1"})
	assert.ErrorIs(t, err, ErrAuthRequired)

	assert.Empty(t, store.inserts)
}

func TestLoad(t *testing.T) {
	store := newBackend(t)
	tr := newTracker(store, "employer", nil, nil)

	apps, err := tr.Load(context.Background(), "J1")

	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "a2", apps[0].ID)
	_, ok := tr.Application("a1")
	assert.True(t, ok)
}

func TestUpdateStatus(t *testing.T) {
	t.Run("owner advances and applicant is notified", func(t *testing.T) {
		store := newBackend(t)
		n := &fakeNotifier{}
		tr := newTracker(store, "employer", nil, n)
		_, err := tr.Load(context.Background(), "J1")
		require.NoError(t, err)

		app, err := tr.UpdateStatus(context.Background(), "a2", entity.ApplicationShortlisted)

		require.NoError(t, err)
		assert.Equal(t, entity.ApplicationShortlisted, app.Status)
		assert.Contains(t, store.updates[0].Filters, remote.Eq("status", "reviewing"))
		require.Len(t, n.inputs, 1)
		assert.Equal(t, "cand", n.inputs[0].RecipientID)
		assert.Equal(t, entity.NotificationTypeApplicationStatus, n.inputs[0].Type)
	})

	t.Run("invalid transition", func(t *testing.T) {
		store := newBackend(t)
		tr := newTracker(store, "employer", nil, nil)
		_, err := tr.Load(context.Background(), "J1")
		require.NoError(t, err)

		_, err = tr.UpdateStatus(context.Background(), "a1", entity.ApplicationAccepted)

		assert.ErrorIs(t, err, entity.ErrInvalidTransition)
		assert.Empty(t, store.updates)
	})

	t.Run("only the applicant withdraws", func(t *testing.T) {
		store := newBackend(t)
		tr := newTracker(store, "employer", nil, nil)
		_, err := tr.Load(context.Background(), "J1")
		require.NoError(t, err)

		_, err = tr.UpdateStatus(context.Background(), "a2", entity.ApplicationWithdrawn)
		assert.ErrorIs(t, err, ErrNotApplicant)

		own := newTracker(store, "cand", nil, &fakeNotifier{})
		_, err = own.Load(context.Background(), "J1")
		require.NoError(t, err)
		app, err := own.UpdateStatus(context.Background(), "a2", entity.ApplicationWithdrawn)
		require.NoError(t, err)
		assert.Equal(t, entity.ApplicationWithdrawn, app.Status)
	})

	t.Run("failure rolls back", func(t *testing.T) {
		store := newBackend(t)
		store.updateFn = func(remote.Query, map[string]any) (*remote.Response, error) {
			return nil, &remote.Error{Status: http.StatusInternalServerError}
		}
		tr := newTracker(store, "employer", nil, nil)
		_, err := tr.Load(context.Background(), "J1")
		require.NoError(t, err)

		_, err = tr.UpdateStatus(context.Background(), "a2", entity.ApplicationRejected)

		require.Error(t, err)
		app, _ := tr.Application("a2")
		assert.Equal(t, entity.ApplicationReviewing, app.Status)
	})

	t.Run("stale precondition rolls back", func(t *testing.T) {
		store := newBackend(t)
		store.updateFn = func(remote.Query, map[string]any) (*remote.Response, error) {
			return &remote.Response{Data: json.RawMessage(`[]`)}, nil
		}
		tr := newTracker(store, "employer", nil, nil)
		_, err := tr.Load(context.Background(), "J1")
		require.NoError(t, err)

		_, err = tr.UpdateStatus(context.Background(), "a1", entity.ApplicationReviewing)

		assert.ErrorIs(t, err, ErrStaleStatus)
		app, _ := tr.Application("a1")
		assert.Equal(t, entity.ApplicationPending, app.Status)
	})

	t.Run("retry after a committed attempt succeeds", func(t *testing.T) {
		store := newBackend(t)
		committedThenLost(t, store, entity.ApplicationShortlisted)
		tr := newRetryingTracker(store, "employer")
		_, err := tr.Load(context.Background(), "J1")
		require.NoError(t, err)

		app, err := tr.UpdateStatus(context.Background(), "a2", entity.ApplicationShortlisted)

		require.NoError(t, err)
		assert.Equal(t, entity.ApplicationShortlisted, app.Status)
		assert.Len(t, store.updates, 2)
		cached, _ := tr.Application("a2")
		assert.Equal(t, entity.ApplicationShortlisted, cached.Status)
	})

	t.Run("retry finding another status is stale", func(t *testing.T) {
		store := newBackend(t)
		committedThenLost(t, store, entity.ApplicationRejected)
		tr := newRetryingTracker(store, "employer")
		_, err := tr.Load(context.Background(), "J1")
		require.NoError(t, err)

		_, err = tr.UpdateStatus(context.Background(), "a2", entity.ApplicationShortlisted)

		assert.ErrorIs(t, err, ErrStaleStatus)
		cached, _ := tr.Application("a2")
		assert.Equal(t, entity.ApplicationReviewing, cached.Status)
	})

	t.Run("in flight is deduplicated", func(t *testing.T) {
		store := newBackend(t)
		tr := newTracker(store, "employer", nil, nil)
		release, ok := tr.pending.Acquire("a1")
		require.True(t, ok)
		defer release()

		_, err := tr.UpdateStatus(context.Background(), "a1", entity.ApplicationReviewing)
		assert.ErrorIs(t, err, ErrRequestInFlight)
	})

	t.Run("unknown application", func(t *testing.T) {
		tr := newTracker(newBackend(t), "employer", nil, nil)
		_, err := tr.UpdateStatus(context.Background(), "zz", entity.ApplicationReviewing)
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})
}

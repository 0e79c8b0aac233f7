// Package application tracks job applications: submission with an optional
// resume upload, listing per job, and status transitions applied
// optimistically with exact rollback.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"slices"
	"sync"

	"feedsync/internal/domain/entity"
	"feedsync/internal/remote"
	"feedsync/internal/resilience/retry"
	"feedsync/internal/usecase/execute"
	"feedsync/pkg/ratelimit"

	"github.com/google/uuid"
)

const (
	applicationsTable = "applications"
	postsTable        = "posts"
)

// Notifier informs a user about an application event. It is satisfied by *notify.Dispatcher.
type Notifier interface {
	Send(ctx context.Context, in entity.NotificationInput) (*entity.Notification, error)
}

// Config holds Tracker settings.
type Config struct {
	// UploadPolicy is the retry policy for resume uploads. Default: retry.UploadPolicy()
	UploadPolicy *retry.Policy
	Logger       *slog.Logger
}

// Tracker caches the applications the client has seen. It is safe for concurrent use.
type Tracker struct {
	store    remote.Store
	exec     *execute.Executor
	identity remote.Identity
	uploader remote.Uploader
	notifier Notifier
	policy   retry.Policy
	logger   *slog.Logger

	mu      sync.Mutex
	apps    map[string]*entity.Application
	pending *ratelimit.Registry[string]
}

// NewTracker creates a tracker. uploader and notifier may be nil.
func NewTracker(store remote.Store, exec *execute.Executor, identity remote.Identity, uploader remote.Uploader, notifier Notifier, cfg Config) *Tracker {
	policy := retry.UploadPolicy()
	if cfg.UploadPolicy != nil {
		policy = *cfg.UploadPolicy
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Tracker{
		store:    store,
		exec:     exec,
		identity: identity,
		uploader: uploader,
		notifier: notifier,
		policy:   policy,
		logger:   cfg.Logger.With(slog.String("component", "application")),
		apps:     make(map[string]*entity.Application),
		pending:  ratelimit.NewRegistry[string]("application", nil),
	}
}

// Application returns a copy of a cached application.
func (t *Tracker) Application(id string) (entity.Application, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.apps[id]; ok {
		return *a, true
	}
	return entity.Application{}, false
}

func (t *Tracker) cache(apps ...entity.Application) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range apps {
		t.apps[a.ID] = &a
	}
}

// Submit uploads the resume, if any, and creates a pending application for the
// current user. The job owner is notified best-effort.
func (t *Tracker) Submit(ctx context.Context, in entity.ApplicationInput) (*entity.Application, error) {
	if err := entity.Validate(in); err != nil {
		recordSubmission("rejected")
		return nil, err
	}
	userID, ok := t.identity.CurrentUserID()
	if !ok {
		recordSubmission("rejected")
		return nil, ErrAuthRequired
	}

	var resumeURL string
	if len(in.Resume) > 0 {
		if t.uploader == nil {
			recordSubmission("rejected")
			return nil, errors.New("application: resume upload not configured")
		}
		name := path.Join("resumes", userID, uuid.NewString())
		url, err := execute.Do(ctx, t.exec, "application.upload", func(ctx context.Context) (string, error) {
			return t.uploader.Upload(ctx, name, in.Resume, in.ContentType)
		}, execute.WithPolicy(t.policy))
		if err != nil {
			recordSubmission("failure")
			return nil, fmt.Errorf("upload resume: %w", err)
		}
		resumeURL = url
	}

	row := map[string]any{
		"job_id":       in.JobID,
		"applicant_id": userID,
		"status":       string(entity.ApplicationPending),
	}
	if in.CoverLetter != "" {
		row["cover_letter"] = in.CoverLetter
	}
	if resumeURL != "" {
		row["resume_url"] = resumeURL
	}

	app, err := execute.Do(ctx, t.exec, "application.submit", func(ctx context.Context) (entity.Application, error) {
		resp, err := t.store.Insert(ctx, applicationsTable, row)
		if err != nil {
			return entity.Application{}, err
		}
		return remote.DecodeOne[entity.Application](resp)
	})
	if remote.StatusOf(err) == http.StatusConflict {
		recordSubmission("duplicate")
		return nil, fmt.Errorf("%w: %w", ErrAlreadyApplied, err)
	}
	if err != nil {
		recordSubmission("failure")
		return nil, err
	}

	t.cache(app)
	recordSubmission("success")

	if owner, err := t.jobOwner(ctx, in.JobID); err != nil {
		t.logger.Warn("job owner lookup failed", slog.String("job_id", in.JobID), slog.Any("error", err))
	} else if owner != userID {
		t.notify(ctx, entity.NotificationInput{
			RecipientID: owner,
			Title:       "New application",
			Body:        "Someone applied to your job post",
			Type:        entity.NotificationTypeApplication,
			Data:        map[string]any{"job_id": in.JobID, "application_id": app.ID},
		})
	}
	return &app, nil
}

func (t *Tracker) jobOwner(ctx context.Context, jobID string) (string, error) {
	return execute.Do(ctx, t.exec, "application.job_owner", func(ctx context.Context) (string, error) {
		resp, err := t.store.Select(ctx, remote.Query{
			Table:   postsTable,
			Columns: []string{"id", "author_id"},
			Filters: []remote.Filter{remote.Eq("id", jobID)},
			Limit:   1,
		})
		if err != nil {
			return "", err
		}
		post, err := remote.DecodeOne[entity.Post](resp)
		return post.AuthorID, err
	}, execute.Silent(), execute.WithMaxRetries(0))
}

func (t *Tracker) notify(ctx context.Context, in entity.NotificationInput) {
	if t.notifier == nil {
		return
	}
	if _, err := t.notifier.Send(ctx, in); err != nil {
		t.logger.Warn("application notification failed",
			slog.String("recipient_id", in.RecipientID),
			slog.String("type", string(in.Type)),
			slog.Any("error", err))
	}
}

// Load fetches the applications for jobID, newest first.
func (t *Tracker) Load(ctx context.Context, jobID string) ([]entity.Application, error) {
	return t.load(ctx, "application.load", remote.Eq("job_id", jobID))
}

// LoadMine fetches the current user's applications, newest first.
func (t *Tracker) LoadMine(ctx context.Context) ([]entity.Application, error) {
	userID, ok := t.identity.CurrentUserID()
	if !ok {
		return nil, ErrAuthRequired
	}
	return t.load(ctx, "application.load_mine", remote.Eq("applicant_id", userID))
}

func (t *Tracker) load(ctx context.Context, name string, filter remote.Filter) ([]entity.Application, error) {
	apps, err := execute.Do(ctx, t.exec, name, func(ctx context.Context) ([]entity.Application, error) {
		resp, err := t.store.Select(ctx, remote.Query{
			Table:   applicationsTable,
			Filters: []remote.Filter{filter},
			Order:   &remote.Order{Column: "created_at", Ascending: false},
		})
		if err != nil {
			return nil, err
		}
		return remote.DecodeRows[entity.Application](resp)
	})
	if err != nil {
		return nil, err
	}
	t.cache(apps...)
	return slices.Clone(apps), nil
}

// UpdateStatus moves a cached application to status.
//
// The transition must be allowed from the cached status, and only the
// applicant may withdraw. The cached status changes immediately; the update is
// guarded on the previous status so a concurrent change is detected, and any
// failure restores the previous status exactly. The applicant is notified
// best-effort when someone else changed the status.
func (t *Tracker) UpdateStatus(ctx context.Context, appID string, status entity.ApplicationStatus) (*entity.Application, error) {
	userID, ok := t.identity.CurrentUserID()
	if !ok {
		recordStatusChange(string(status), "rejected")
		return nil, ErrAuthRequired
	}

	release, ok := t.pending.Acquire(appID)
	if !ok {
		recordStatusChange(string(status), "deduplicated")
		return nil, ErrRequestInFlight
	}
	defer release()

	t.mu.Lock()
	cached, ok := t.apps[appID]
	if !ok {
		t.mu.Unlock()
		recordStatusChange(string(status), "rejected")
		return nil, fmt.Errorf("application %s: %w", appID, entity.ErrNotFound)
	}
	before := *cached
	if !entity.CanTransition(before.Status, status) {
		t.mu.Unlock()
		recordStatusChange(string(status), "rejected")
		return nil, fmt.Errorf("%w: %s -> %s", entity.ErrInvalidTransition, before.Status, status)
	}
	if status == entity.ApplicationWithdrawn && before.ApplicantID != userID {
		t.mu.Unlock()
		recordStatusChange(string(status), "rejected")
		return nil, ErrNotApplicant
	}
	cached.Status = status
	t.mu.Unlock()

	attempts := 0
	updated, err := execute.Do(ctx, t.exec, "application.update_status", func(ctx context.Context) (entity.Application, error) {
		attempts++
		resp, err := t.store.Update(ctx, remote.Query{
			Table: applicationsTable,
			Filters: []remote.Filter{
				remote.Eq("id", appID),
				remote.Eq("status", string(before.Status)),
			},
		}, map[string]any{"status": string(status)})
		if err != nil {
			return entity.Application{}, err
		}
		app, err := remote.DecodeOne[entity.Application](resp)
		if errors.Is(err, remote.ErrNoRows) {
			// An earlier attempt may have committed before its response was lost.
			if attempts > 1 {
				current, lookupErr := t.fetch(ctx, appID)
				if lookupErr != nil {
					return entity.Application{}, lookupErr
				}
				if current.Status == status {
					return current, nil
				}
			}
			return entity.Application{}, fmt.Errorf("%w: %w", ErrStaleStatus,
				&remote.Error{Status: http.StatusConflict, Message: "status precondition failed"})
		}
		return app, err
	})
	if err != nil {
		t.mu.Lock()
		if a, ok := t.apps[appID]; ok {
			a.Status = before.Status
		}
		t.mu.Unlock()
		recordStatusChange(string(status), "rollback")
		t.logger.Warn("status change failed, rolled back",
			slog.String("application_id", appID),
			slog.String("from", string(before.Status)),
			slog.String("to", string(status)),
			slog.Any("error", err))
		return nil, err
	}

	t.cache(updated)
	recordStatusChange(string(status), "success")

	if updated.ApplicantID != userID {
		t.notify(ctx, entity.NotificationInput{
			RecipientID: updated.ApplicantID,
			Title:       "Application update",
			Body:        fmt.Sprintf("Your application is now %s", status),
			Type:        entity.NotificationTypeApplicationStatus,
			Data:        map[string]any{"application_id": appID, "status": string(status)},
		})
	}
	return &updated, nil
}

// fetch reads one application row by id.
func (t *Tracker) fetch(ctx context.Context, appID string) (entity.Application, error) {
	resp, err := t.store.Select(ctx, remote.Query{
		Table:   applicationsTable,
		Filters: []remote.Filter{remote.Eq("id", appID)},
		Limit:   1,
	})
	if err != nil {
		return entity.Application{}, err
	}
	return remote.DecodeOne[entity.Application](resp)
}

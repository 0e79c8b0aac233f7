package entity

import "time"

// ApplicationStatus is the lifecycle state of a job application.
type ApplicationStatus string

const (
	ApplicationPending     ApplicationStatus = "pending"
	ApplicationReviewing   ApplicationStatus = "reviewing"
	ApplicationShortlisted ApplicationStatus = "shortlisted"
	ApplicationInterview   ApplicationStatus = "interview"
	ApplicationAccepted    ApplicationStatus = "accepted"
	ApplicationRejected    ApplicationStatus = "rejected"
	ApplicationWithdrawn   ApplicationStatus = "withdrawn"
)

// Application is a candidate's application to a job post.
type Application struct {
	ID          string            `json:"id"`
	JobID       string            `json:"job_id"`
	ApplicantID string            `json:"applicant_id"`
	Status      ApplicationStatus `json:"status"`
	CoverLetter string            `json:"cover_letter,omitempty"`
	ResumeURL   string            `json:"resume_url,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ApplicationInput is the validated payload for a new application.
type ApplicationInput struct {
	JobID       string `validate:"required"`
	CoverLetter string `validate:"max=5000"`
	Resume      []byte `validate:"max=10485760"`
	ContentType string `validate:"required_with=Resume"`
}

var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationPending:     {ApplicationReviewing, ApplicationRejected, ApplicationWithdrawn},
	ApplicationReviewing:   {ApplicationShortlisted, ApplicationRejected, ApplicationWithdrawn},
	ApplicationShortlisted: {ApplicationInterview, ApplicationRejected, ApplicationWithdrawn},
	ApplicationInterview:   {ApplicationAccepted, ApplicationRejected, ApplicationWithdrawn},
}

// IsFinal reports whether no further transition is possible from s.
func (s ApplicationStatus) IsFinal() bool {
	_, ok := applicationTransitions[s]
	return !ok
}

// CanTransition reports whether an application may move from one status to another.
func CanTransition(from, to ApplicationStatus) bool {
	for _, next := range applicationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

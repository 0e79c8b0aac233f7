package application

import "errors"

var (
	// ErrAuthRequired is returned when nobody is signed in.
	ErrAuthRequired = errors.New("Authentication required") //nolint:staticcheck // user-facing text

	// ErrAlreadyApplied is returned by Submit when the applicant already applied to the job.
	ErrAlreadyApplied = errors.New("already applied to this job")

	// ErrStaleStatus is returned by UpdateStatus when the backend row no longer
	// has the status the change was based on.
	ErrStaleStatus = errors.New("application status changed concurrently")

	// ErrNotApplicant is returned when someone other than the applicant withdraws.
	ErrNotApplicant = errors.New("only the applicant can withdraw")

	// ErrRequestInFlight is returned when the application already has a status change in flight.
	ErrRequestInFlight = errors.New("request already in flight")
)

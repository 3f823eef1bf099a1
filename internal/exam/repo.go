package exam

import (
	"context"
	"time"
)

// Store persists tests and attempts. GetTest returns the full test with answer
// keys; callers build the student-safe view.
type Store interface {
	PutTest(ctx context.Context, t Test) error
	GetTest(ctx context.Context, id string) (Test, error)
	ListTests(ctx context.Context, opts ListOpts) ([]TestSummary, error)

	// StartAttempt returns the user's in-progress attempt for the test, or
	// creates one started at now and reports created. A submitted attempt
	// yields ErrAlreadySubmitted.
	StartAttempt(ctx context.Context, testID, userID string, now time.Time) (a Attempt, created bool, err error)
	FindAttempt(ctx context.Context, testID, userID string) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)

	// SaveAnswer upserts by (section, question). A value whose Seq is older
	// than the stored one is dropped and reported with applied == false.
	SaveAnswer(ctx context.Context, attemptID string, a Answer) (applied bool, err error)

	// Submit grades and finalizes the attempt. On an already submitted
	// attempt it returns the stored attempt and ErrAlreadySubmitted.
	Submit(ctx context.Context, attemptID string, now time.Time) (Attempt, error)
}

package service

import "errors"

var (
	// ErrCompetitionNotFound indicates the competition does not exist.
	ErrCompetitionNotFound = errors.New("competition not found")
	// ErrApplicationNotFound indicates the application does not exist.
	ErrApplicationNotFound = errors.New("application not found")
	// ErrStoredFileNotFound indicates the application record exists but its file is gone.
	ErrStoredFileNotFound = errors.New("stored file not found")
	// ErrEmptyFile indicates an upload without content.
	ErrEmptyFile = errors.New("uploaded file is empty")
	// ErrUnsupportedFileType indicates the detected mime type is not accepted.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrFileTooLarge indicates the upload exceeds the configured limit.
	ErrFileTooLarge = errors.New("uploaded file is too large")
	// ErrDeadlineRequired indicates a competition without rounds was created without a deadline.
	ErrDeadlineRequired = errors.New("application deadline is required when no rounds are given")
	// ErrInvalidEvaluationPolicy indicates an unknown evaluation policy.
	ErrInvalidEvaluationPolicy = errors.New("invalid evaluation policy")
	// ErrUnknownRound indicates an update referenced a round id outside the competition.
	ErrUnknownRound = errors.New("round does not belong to competition")
	// ErrRoundOrderConflict indicates a round edit would reorder rounds around the active one.
	ErrRoundOrderConflict = errors.New("round order conflicts with the active round")

	// ErrApplicantEliminated indicates the applicant was eliminated from the competition.
	ErrApplicantEliminated = errors.New("applicant has been eliminated from this competition")
	// ErrRoundNotInCompetition indicates the requested round is not part of the competition.
	ErrRoundNotInCompetition = errors.New("round not found in competition")
	// ErrRoundDeadlinePassed indicates the round deadline lies in the past.
	ErrRoundDeadlinePassed = errors.New("round deadline has passed")
	// ErrRoundNotActive indicates the round is not accepting submissions.
	ErrRoundNotActive = errors.New("round is not active")

	// ErrNoRounds indicates the competition has no rounds to advance.
	ErrNoRounds = errors.New("competition has no rounds")
	// ErrNoActiveRound indicates no round is currently active.
	ErrNoActiveRound = errors.New("competition has no active round")
	// ErrRoundDeadlineNotReached indicates the active round is still open.
	ErrRoundDeadlineNotReached = errors.New("active round deadline has not passed yet")
	// ErrNoNextRound indicates the active round is the last one.
	ErrNoNextRound = errors.New("active round is the last round")
	// ErrConcurrentAdvance indicates another transition won the race.
	ErrConcurrentAdvance = errors.New("round state changed concurrently")

	// ErrInvalidReviewPoints indicates a score outside the accepted range.
	ErrInvalidReviewPoints = errors.New("points must be between 0 and 10")
	// ErrReviewPointsRequired indicates a points-only competition received no score.
	ErrReviewPointsRequired = errors.New("points are required for this competition")
	// ErrReviewCompetitionUnresolved indicates neither the application nor its round reference a competition.
	ErrReviewCompetitionUnresolved = errors.New("competition for application could not be resolved")

	// ErrNoApplications indicates the applicant never applied to the competition.
	ErrNoApplications = errors.New("no applications for this competition")
	// ErrIdentityRequired indicates the caller's identity is missing.
	ErrIdentityRequired = errors.New("user identity is required")
)

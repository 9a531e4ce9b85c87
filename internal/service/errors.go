package service

import "errors"

var (
	// ErrExerciseNotFound indicates an exercise could not be found.
	ErrExerciseNotFound = errors.New("exercise not found")
	// ErrExerciseInactive indicates the exercise does not accept submissions.
	ErrExerciseInactive = errors.New("exercise is not accepting submissions")
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrReviewNotFound indicates the submission has no review record.
	ErrReviewNotFound = errors.New("review not found")
	// ErrInvalidTransition indicates the requested review status change is not allowed.
	ErrInvalidTransition = errors.New("invalid review status transition")
	// ErrInvalidAdjustment indicates a reviewer correction could not be applied.
	ErrInvalidAdjustment = errors.New("invalid adjustment")
	// ErrInvalidInput indicates a request that passed tag validation is still unusable.
	ErrInvalidInput = errors.New("invalid input")
	// ErrGeneratorUnavailable indicates AI generation is not configured.
	ErrGeneratorUnavailable = errors.New("content generator unavailable")
	// ErrGenerationFailed indicates the content generator returned an error.
	ErrGenerationFailed = errors.New("content generation failed")
	// ErrFileRequired indicates an upload request carried no file.
	ErrFileRequired = errors.New("file is required")
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadScanFailed indicates validation of the file failed.
	ErrUploadScanFailed = errors.New("file scanning failed")
)

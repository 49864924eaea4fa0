// Package services defines the business logic for principals, targets, the
// vote ledgers, comments and reporting. This file centralizes service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Credential and token errors.
var (
	// ErrNameRequired is returned when registration omits a display name.
	ErrNameRequired = errors.New("name is required")

	// ErrInvalidEmail is returned for an email that is empty or malformed.
	ErrInvalidEmail = errors.New("a valid email is required")

	// ErrWeakPassword is returned when a password is outside the allowed length.
	ErrWeakPassword = errors.New("password must be at least 8 characters and at most 72 bytes")

	// ErrEmailTaken is returned when an email is already registered for the kind.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned when email/password do not match.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidRefreshToken is returned when a refresh token fails to verify
	// or no longer matches the principal's active token.
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")

	// ErrInvalidKind is returned for an unknown principal kind.
	ErrInvalidKind = errors.New("unknown principal kind")
)

// Principal resolution errors. Their messages are part of the API contract.
var (
	ErrNoToken        = errors.New("no token")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrMalformedToken = errors.New("malformed token")
	ErrNoPrincipal    = errors.New("no matching principal")
)

// Target errors.
var (
	// ErrServiceNotFound indicates that the referenced service does not exist.
	ErrServiceNotFound = errors.New("service not found")

	// ErrTargetNotFound indicates that the target does not exist (or is of a
	// different kind than requested).
	ErrTargetNotFound = errors.New("target not found")

	ErrTitleRequired       = errors.New("title is required")
	ErrDescriptionRequired = errors.New("description is required")
	ErrTitleTooLong        = errors.New("title too long")
	ErrDescriptionTooLong  = errors.New("description too long")

	// ErrInvalidTargetKind is returned for a kind outside feedback/issue/bug.
	ErrInvalidTargetKind = errors.New("invalid target kind")

	// ErrInvalidStatus is returned for a status outside the lifecycle enum.
	ErrInvalidStatus = errors.New("status must be one of open, in-progress, resolved, closed")

	// ErrStatusUnsupported is returned when a status change targets feedback.
	ErrStatusUnsupported = errors.New("status is not supported for this target kind")

	// ErrNotTargetOwner is returned when a user other than the author mutates a target.
	ErrNotTargetOwner = errors.New("only the author can modify this target")

	// ErrNotServiceOwner is returned when a principal other than the owning
	// service changes a target's status or the service profile.
	ErrNotServiceOwner = errors.New("only the owning service can perform this action")
)

// Service profile errors.
var (
	// ErrInvalidURL is returned when a website or logo URL is not an absolute
	// http(s) URL.
	ErrInvalidURL = errors.New("url must be an absolute http or https URL")

	// ErrFieldTooLong is returned when a profile field exceeds its column size.
	ErrFieldTooLong = errors.New("field too long")
)

// Reporting errors.
var (
	// ErrInvalidBucket is returned for an activity bucket other than day/week.
	ErrInvalidBucket = errors.New("bucket must be day or week")

	// ErrInvalidRange is returned when the activity window is outside 1..365 days.
	ErrInvalidRange = errors.New("days must be between 1 and 365")
)

// Vote errors.
var (
	// ErrInvalidVote is returned for a direction other than upvote/downvote.
	ErrInvalidVote = errors.New("vote must be upvote or downvote")

	// ErrAlreadyUpvoted is returned when a user upvotes a service twice.
	ErrAlreadyUpvoted = errors.New("service already upvoted")

	// ErrUpvoteNotFound is returned when removing a service upvote that does not exist.
	ErrUpvoteNotFound = errors.New("service upvote not found")
)

// Comment errors.
var (
	ErrEmptyMessage   = errors.New("message is required")
	ErrMessageTooLong = errors.New("message too long")

	// ErrCommentNotFound indicates that the comment or reply does not exist.
	ErrCommentNotFound = errors.New("comment not found")

	// ErrNestedReply is returned when replying to a reply.
	ErrNestedReply = errors.New("replies cannot be replied to")

	// ErrNotCommentAuthor is returned when a user other than the author
	// mutates a comment.
	ErrNotCommentAuthor = errors.New("only the author can modify this comment")

	// ErrLikeTargetMismatch is returned when a like's target type does not
	// match the row (a reply liked as a comment or vice versa).
	ErrLikeTargetMismatch = errors.New("like target type does not match")
)

package service

import (
	dErrors "taskdesk/pkg/domain-errors"
)

// remoteFailure wraps a record service error. The caller has already rolled
// back; the message tells the user the change did not happen.
func remoteFailure(err error, message string) error {
	return dErrors.Wrap(err, dErrors.CodeRemoteFailure, message)
}

// errStillSaving refuses a mutation on a task whose create has not been
// confirmed yet. Its provisional id is unknown to the record service.
func errStillSaving() error {
	return dErrors.New(dErrors.CodeConflict, "This task is still being saved. Try again in a moment.")
}

// Notice renders the transient notification shown to the user for an
// operation outcome. A nil error yields an empty notice.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		return dErrors.MessageOf(err)
	case dErrors.CodeForbidden:
		return "You do not have permission to do that."
	case dErrors.CodeSelfDemotion:
		return "You cannot remove your own admin role."
	case dErrors.CodeRemoteFailure:
		return dErrors.MessageOf(err) + " Your change was not saved."
	case dErrors.CodeConflict:
		return dErrors.MessageOf(err)
	case dErrors.CodeNotFound:
		return "That item no longer exists."
	case dErrors.CodeUnauthorized:
		return "Please sign in again."
	default:
		return "Something went wrong."
	}
}

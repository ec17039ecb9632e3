package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "taskdesk/pkg/domain-errors"
)

// Typed identifiers keep profile and task references from being mixed up at
// compile time. Construct them with the Parse functions at trust boundaries.
type (
	ProfileID uuid.UUID
	TaskID    uuid.UUID
)

const maxIDLength = 36

func parseUUID(s, kind string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

// ParseProfileID validates external input as a profile identifier.
func ParseProfileID(s string) (ProfileID, error) {
	u, err := parseUUID(s, "profile id")
	return ProfileID(u), err
}

// ParseTaskID validates external input as a task identifier.
func ParseTaskID(s string) (TaskID, error) {
	u, err := parseUUID(s, "task id")
	return TaskID(u), err
}

// NewTaskID returns a random task identifier. Used for provisional ids on
// optimistic inserts; the record service assigns the durable one.
func NewTaskID() TaskID { return TaskID(uuid.New()) }

// NewProfileID returns a random profile identifier.
func NewProfileID() ProfileID { return ProfileID(uuid.New()) }

func (id ProfileID) String() string { return uuid.UUID(id).String() }
func (id ProfileID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id TaskID) String() string { return uuid.UUID(id).String() }
func (id TaskID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ProfileID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ProfileID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id TaskID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *TaskID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

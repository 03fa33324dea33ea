// Package domain holds typed identifiers and small value types parsed at
// trust boundaries. Handlers parse raw strings once; services only ever see
// the typed forms.
package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "likeness/pkg/domain-errors"
)

// ContributorID is the internal contributor record identifier.
type ContributorID uuid.UUID

// APIKeyID identifies a platform API key record.
type APIKeyID uuid.UUID

// EventID identifies a consent ledger event.
type EventID uuid.UUID

// UsageID identifies a recorded platform usage event.
type UsageID uuid.UUID

func (id ContributorID) String() string { return uuid.UUID(id).String() }
func (id APIKeyID) String() string      { return uuid.UUID(id).String() }
func (id EventID) String() string       { return uuid.UUID(id).String() }
func (id UsageID) String() string       { return uuid.UUID(id).String() }

func (id ContributorID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id APIKeyID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id UsageID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

// Identifiers serialize as their canonical UUID string.
func (id ContributorID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id APIKeyID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id EventID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id UsageID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }

func (id *ContributorID) UnmarshalText(b []byte) error { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *APIKeyID) UnmarshalText(b []byte) error      { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *EventID) UnmarshalText(b []byte) error       { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *UsageID) UnmarshalText(b []byte) error       { return unmarshalUUID(b, (*uuid.UUID)(id)) }

func unmarshalUUID(b []byte, dst *uuid.UUID) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid id")
	}
	*dst = parsed
	return nil
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return parsed, nil
}

func ParseContributorID(s string) (ContributorID, error) {
	u, err := parseUUID(s, "contributor id")
	return ContributorID(u), err
}

func ParseAPIKeyID(s string) (APIKeyID, error) {
	u, err := parseUUID(s, "api key id")
	return APIKeyID(u), err
}

func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event id")
	return EventID(u), err
}

func ParseUsageID(s string) (UsageID, error) {
	u, err := parseUUID(s, "usage id")
	return UsageID(u), err
}

// CID is the opaque, stable external identifier of a person in the registry.
// It is unrelated to ContributorID and is never reused.
type CID string

const cidPrefix = "cid_"

var cidPattern = regexp.MustCompile(`^cid_[a-z0-9]{6,64}$`)

// NewCID mints a fresh identifier. Uniqueness comes from a random UUID body.
func NewCID() CID {
	return CID(cidPrefix + strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// ParseCID validates the external form. The error is always CodeInvalidInput
// with the message "invalid_format" so batch responses can echo it verbatim.
func ParseCID(s string) (CID, error) {
	if !cidPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid_format")
	}
	return CID(s), nil
}

func (c CID) String() string { return string(c) }

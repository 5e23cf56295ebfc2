package types

import (
	"time"

	"github.com/google/uuid"
)

// MappingSetID represents a UUIDv7 mapping set identifier.
// String alias enables type safety while maintaining JSON string serialization.
type MappingSetID string

// NewMappingSetID generates a UUIDv7 mapping set identifier.
// Time-ordered IDs keep newest-first listings cheap on the primary key.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewMappingSetID() MappingSetID {
	return MappingSetID(uuid.Must(uuid.NewV7()).String())
}

// ParseMappingSetID validates and converts a string to MappingSetID.
// Rejects malformed UUIDs to prevent invalid IDs from reaching storage.
func ParseMappingSetID(s string) (MappingSetID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return MappingSetID(u.String()), nil
}

// MappingSetIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func MappingSetIDTime(id MappingSetID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}

package core

import (
	"fmt"

	"github.com/segmentio/ksuid"
)

// ID is a KSUID-backed identifier. KSUIDs sort by creation time, which keeps
// task listings stable without an extra sequence column.
type ID string

func NewID() (ID, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return ID(id.String()), nil
}

func MustNewID() ID {
	id, err := NewID()
	if err != nil {
		panic(err)
	}
	return id
}

// ParseID validates s as a KSUID.
func ParseID(s string) (ID, error) {
	if s == "" {
		return "", fmt.Errorf("empty ID")
	}
	id, err := ksuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid ID format %q: %w", s, err)
	}
	return ID(id.String()), nil
}

func (c ID) String() string {
	return string(c)
}

func (c ID) IsZero() bool {
	return c == ""
}

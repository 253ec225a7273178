package assign

import (
	"errors"
	"fmt"

	"groupdraw-server-go/models"
)

// MaxManualGroupSize caps hand-picked groups.
const MaxManualGroupSize = 6

var (
	ErrEmptyGroup       = errors.New("group has no members")
	ErrGroupTooLarge    = errors.New("group is too large")
	ErrUnknownStudent   = errors.New("student is not on the roster")
	ErrDuplicateStudent = errors.New("student is already in another group")
)

// CohortLookup resolves a student name to its cohort.
type CohortLookup interface {
	Cohort(name string) (models.Cohort, bool)
}

// Classification describes how a group fares against the newcomer rule.
type Classification string

const (
	Valid           Classification = "valid"
	MissingNewcomer Classification = "missing_newcomer"
	LoneReturner    Classification = "lone_returner"
	LoneNewcomer    Classification = "lone_newcomer"
	Empty           Classification = "empty"
)

// Severity is "ok", "warning" or "error".
func (c Classification) Severity() string {
	switch c {
	case Valid:
		return "ok"
	case LoneReturner:
		return "warning"
	default:
		return "error"
	}
}

// IsValid reports whether group has at least one newcomer.
// Names missing from the roster count as non-newcomers.
func IsValid(group models.Group, roster CohortLookup) bool {
	for _, name := range group {
		if c, ok := roster.Cohort(name); ok && c == models.Newcomer {
			return true
		}
	}
	return false
}

// Classify places a group in one of the display buckets. A single
// returner is only a warning; a group of two or more without any
// newcomer is an error.
func Classify(group models.Group, roster CohortLookup) Classification {
	hasNewcomer := IsValid(group, roster)
	switch {
	case len(group) == 0:
		return Empty
	case hasNewcomer && len(group) >= 2:
		return Valid
	case len(group) == 1 && hasNewcomer:
		return LoneNewcomer
	case len(group) == 1:
		return LoneReturner
	default:
		return MissingNewcomer
	}
}

// ValidateManualGroups checks hand-picked groups before they are
// excluded from a draw: members must be on the roster and appear once.
func ValidateManualGroups(roster CohortLookup, manual []models.Group) error {
	seen := make(map[string]int)
	for i, group := range manual {
		n := i + 1
		if len(group) == 0 {
			return fmt.Errorf("manual group %d: %w", n, ErrEmptyGroup)
		}
		if len(group) > MaxManualGroupSize {
			return fmt.Errorf("manual group %d has %d members, max %d: %w", n, len(group), MaxManualGroupSize, ErrGroupTooLarge)
		}
		for _, name := range group {
			if _, ok := roster.Cohort(name); !ok {
				return fmt.Errorf("manual group %d: %q: %w", n, name, ErrUnknownStudent)
			}
			if prev, ok := seen[name]; ok {
				return fmt.Errorf("manual group %d: %q already in manual group %d: %w", n, name, prev, ErrDuplicateStudent)
			}
			seen[name] = n
		}
	}
	return nil
}

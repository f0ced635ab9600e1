package types

import (
	"encoding/json"
	"fmt"
)

// FlagState is the moderation state of a post.
type FlagState int

const (
	// FlagPending means moderation has not completed yet.
	FlagPending FlagState = iota
	// FlagClear means the post was checked and found safe, or the check failed open.
	FlagClear
	// FlagFlagged means the moderation service judged the post unsafe.
	FlagFlagged
)

// FlagStateOf converts a verdict into its concrete state.
func FlagStateOf(unsafe bool) FlagState {
	if unsafe {
		return FlagFlagged
	}
	return FlagClear
}

func (s FlagState) String() string {
	switch s {
	case FlagPending:
		return "pending"
	case FlagClear:
		return "clear"
	case FlagFlagged:
		return "flagged"
	default:
		return fmt.Sprintf("FlagState(%d)", int(s))
	}
}

// Concrete reports whether moderation has produced a result.
func (s FlagState) Concrete() bool {
	return s == FlagClear || s == FlagFlagged
}

// MarshalJSON encodes the state as null, false or true.
func (s FlagState) MarshalJSON() ([]byte, error) {
	switch s {
	case FlagClear:
		return []byte("false"), nil
	case FlagFlagged:
		return []byte("true"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes null, false or true.
func (s *FlagState) UnmarshalJSON(data []byte) error {
	var flagged *bool
	if err := json.Unmarshal(data, &flagged); err != nil {
		return err
	}
	switch {
	case flagged == nil:
		*s = FlagPending
	case *flagged:
		*s = FlagFlagged
	default:
		*s = FlagClear
	}
	return nil
}

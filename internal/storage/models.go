package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Attempt is one completed pipeline attempt for a user. The audio refs are
// nullable: an attempt that reached persistence without a usable input or
// output artifact records an explicit NULL, never a dropped slot.
type Attempt struct {
	UserID         int64
	Attempt        int
	InputAudioRef  *string
	RecognizedText string
	GeneratedText  string
	OutputAudioRef *string
	CreatedAt      time.Time
}

// UserHistory is the durable per-user record of all completed pipeline
// attempts, exposed as four parallel sequences of equal length. Position i
// across all four sequences describes attempt i+1.
type UserHistory struct {
	UserID          int64     `json:"id"`
	InputAudioRefs  []*string `json:"input_wav_list"`
	RecognizedTexts []string  `json:"atot_text_list"`
	GeneratedTexts  []string  `json:"ttot_text_list"`
	OutputAudioRefs []*string `json:"output_wav_list"`
}

// Len returns the number of recorded attempts.
func (h UserHistory) Len() int {
	return len(h.RecognizedTexts)
}

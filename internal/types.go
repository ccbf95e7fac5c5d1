package internal

import "time"

// ChapterRun is one processed chapter as recorded in the run ledger.
type ChapterRun struct {
	ID        string        `json:"id"`
	RunID     string        `json:"run_id"`
	Stage     string        `json:"stage"`
	Chapter   int           `json:"chapter"`
	Status    string        `json:"status"`
	Chunks    int           `json:"chunks"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

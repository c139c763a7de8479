package types

// Segment is one diarized slice of the interview audio. Times are integer
// milliseconds from the start of the recording; Text is filled in by the
// transcription step.
type Segment struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Speaker int    `json:"speaker"`
	Text    string `json:"text,omitempty"`
}

// ResultRow is one row of the results table.
type ResultRow struct {
	InterviewID int64  `json:"interview_id"`
	UserID      int64  `json:"user_id"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Speaker     int    `json:"speaker"`
	Text        string `json:"text"`
}

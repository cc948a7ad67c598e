package model

type Cursor struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// PresenceEntry is the last known cursor of one session in one document.
type PresenceEntry struct {
	SessionID  string `json:"session_id"`
	DocumentID string `json:"document_id"`
	Cursor     Cursor `json:"cursor"`
	UpdatedAt  int64  `json:"updated_at"`
}

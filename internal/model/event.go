package model

const (
	EventSnapshot        = "snapshot"
	EventChange          = "change"
	EventPresence        = "presence"
	EventPresenceRemoved = "presence_removed"
	EventError           = "error"
)

// Event is an outbound message addressed to one session. Wire encoding is
// left to the transport.
type Event struct {
	Type       string
	DocumentID string
	Content    string
	Version    int64
	SessionID  string
	Line       int
	Column     int
	Code       int
	Message    string
	Retryable  bool
}

func SnapshotEvent(s DocumentState) Event {
	return Event{Type: EventSnapshot, DocumentID: s.ID, Content: s.Content, Version: s.Version}
}

func ChangeEvent(s DocumentState) Event {
	return Event{Type: EventChange, DocumentID: s.ID, Content: s.Content, Version: s.Version}
}

func PresenceEvent(e PresenceEntry) Event {
	return Event{
		Type:       EventPresence,
		DocumentID: e.DocumentID,
		SessionID:  e.SessionID,
		Line:       e.Cursor.Line,
		Column:     e.Cursor.Column,
	}
}

func PresenceRemovedEvent(docID, sessionID string) Event {
	return Event{Type: EventPresenceRemoved, DocumentID: docID, SessionID: sessionID}
}

package protocol

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/xxxsen/mcollab/internal/model"
	"github.com/xxxsen/mcollab/internal/pkg/errcode"
	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
)

type outFrame struct {
	Type       string  `json:"type"`
	DocumentID string  `json:"document_id"`
	Content    *string `json:"content,omitempty"`
	Version    *int64  `json:"version,omitempty"`
	SessionID  string  `json:"session_id,omitempty"`
	Line       *int    `json:"line,omitempty"`
	Column     *int    `json:"column,omitempty"`
	Code       int     `json:"code,omitempty"`
	Message    string  `json:"message,omitempty"`
	Retryable  *bool   `json:"retryable,omitempty"`
}

// Encode renders an outbound event. Each event type carries only its own
// fields, but those are always present even when zero.
func Encode(ev model.Event) ([]byte, error) {
	out := outFrame{Type: ev.Type, DocumentID: ev.DocumentID}
	switch ev.Type {
	case model.EventSnapshot, model.EventChange:
		out.Content = &ev.Content
		out.Version = &ev.Version
	case model.EventPresence:
		out.SessionID = ev.SessionID
		out.Line = &ev.Line
		out.Column = &ev.Column
	case model.EventPresenceRemoved:
		out.SessionID = ev.SessionID
	case model.EventError:
		out.Code = ev.Code
		out.Message = ev.Message
		out.Retryable = &ev.Retryable
	default:
		return nil, fmt.Errorf("unknown event type %q: %w", ev.Type, appErr.ErrInvalid)
	}
	return json.Marshal(out)
}

// ErrorEvent reports a failed request back to the client that made it.
func ErrorEvent(docID string, err error) model.Event {
	return model.Event{
		Type:       model.EventError,
		DocumentID: docID,
		Code:       errcode.FromError(err),
		Message:    err.Error(),
		Retryable:  appErr.IsRetryable(err),
	}
}

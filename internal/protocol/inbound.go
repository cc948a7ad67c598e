// Package protocol defines the websocket frames exchanged with editors and
// validates everything arriving from the network before it reaches the core.
package protocol

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/goccy/go-json"

	"github.com/xxxsen/mcollab/internal/model"
	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
)

const (
	TypeJoin   = "join"
	TypeChange = "change"
	TypeCursor = "cursor"
	TypeLeave  = "leave"
)

// Frame is one inbound client message. Optional fields are pointers so that
// an absent value can be told apart from a zero one.
type Frame struct {
	Type            string  `json:"type" binding:"required,oneof=join change cursor leave"`
	DocumentID      string  `json:"document_id" binding:"required,max=256"`
	Content         *string `json:"content"`
	ClientTimestamp *int64  `json:"client_timestamp"`
	Line            *int    `json:"line"`
	Column          *int    `json:"column"`
}

// Decode parses and validates a raw frame. Every failure wraps
// appErr.ErrMalformed.
func Decode(data []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrMalformed, err)
	}
	f.DocumentID = strings.TrimSpace(f.DocumentID)
	if err := binding.Validator.ValidateStruct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrMalformed, err)
	}
	switch f.Type {
	case TypeChange:
		if f.Content == nil {
			return nil, fmt.Errorf("%w: change without content", appErr.ErrMalformed)
		}
		if f.ClientTimestamp == nil {
			return nil, fmt.Errorf("%w: change without client_timestamp", appErr.ErrMalformed)
		}
	case TypeCursor:
		if f.Line == nil || f.Column == nil {
			return nil, fmt.Errorf("%w: cursor without position", appErr.ErrMalformed)
		}
		if *f.Line < 0 || *f.Column < 0 {
			return nil, fmt.Errorf("%w: negative cursor position", appErr.ErrMalformed)
		}
	}
	return f, nil
}

func (f *Frame) ChangeRequest(sessionID string) model.ChangeRequest {
	req := model.ChangeRequest{
		DocumentID:      f.DocumentID,
		OriginSessionID: sessionID,
	}
	if f.Content != nil {
		req.ProposedContent = *f.Content
	}
	if f.ClientTimestamp != nil {
		req.ClientTimestamp = *f.ClientTimestamp
	}
	return req
}

func (f *Frame) Cursor() model.Cursor {
	var c model.Cursor
	if f.Line != nil {
		c.Line = *f.Line
	}
	if f.Column != nil {
		c.Column = *f.Column
	}
	return c
}

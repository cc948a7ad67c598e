// Package merge decides whether an incoming whole-document change wins over
// the current state. Newer client timestamps win; equal timestamps are broken
// by comparing origin session IDs so every replica reaches the same answer
// from the same inputs.
package merge

import "github.com/xxxsen/mcollab/internal/model"

// Merge applies req to state. It returns the resulting state and whether the
// change was accepted. A rejected change returns state untouched.
func Merge(state model.DocumentState, req model.ChangeRequest) (model.DocumentState, bool) {
	if !wins(state, req) {
		return state, false
	}
	state.Content = req.ProposedContent
	state.Version++
	state.LastWriterID = req.OriginSessionID
	state.LastWriteTimestamp = req.ClientTimestamp
	return state, true
}

func wins(state model.DocumentState, req model.ChangeRequest) bool {
	switch {
	case req.ClientTimestamp > state.LastWriteTimestamp:
		return true
	case req.ClientTimestamp < state.LastWriteTimestamp:
		return false
	default:
		// same origin re-editing within one tick is accepted
		return req.OriginSessionID >= state.LastWriterID
	}
}

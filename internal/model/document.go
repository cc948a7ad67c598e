package model

// DocumentState is the in-memory authoritative copy of one document.
type DocumentState struct {
	ID                 string `json:"id"`
	Content            string `json:"content"`
	Version            int64  `json:"version"`
	LastWriterID       string `json:"last_writer_id"`
	LastWriteTimestamp int64  `json:"last_write_ts"`
}

// ChangeRequest is an inbound whole-document edit. It is consumed by the merge
// step and never stored.
type ChangeRequest struct {
	DocumentID      string
	OriginSessionID string
	ProposedContent string
	ClientTimestamp int64
}

// Snapshot is the durable record of a document.
type Snapshot struct {
	DocumentID         string `json:"document_id" bson:"_id"`
	Content            string `json:"content" bson:"content"`
	Version            int64  `json:"version" bson:"version"`
	LastWriterID       string `json:"last_writer_id" bson:"last_writer_id"`
	LastWriteTimestamp int64  `json:"last_write_ts" bson:"last_write_ts"`
	Mtime              int64  `json:"mtime" bson:"mtime"`
}

func NewDocumentState(id string) DocumentState {
	return DocumentState{ID: id}
}

func StateFromSnapshot(snap *Snapshot) DocumentState {
	return DocumentState{
		ID:                 snap.DocumentID,
		Content:            snap.Content,
		Version:            snap.Version,
		LastWriterID:       snap.LastWriterID,
		LastWriteTimestamp: snap.LastWriteTimestamp,
	}
}

func (s DocumentState) ToSnapshot(mtime int64) *Snapshot {
	return &Snapshot{
		DocumentID:         s.ID,
		Content:            s.Content,
		Version:            s.Version,
		LastWriterID:       s.LastWriterID,
		LastWriteTimestamp: s.LastWriteTimestamp,
		Mtime:              mtime,
	}
}

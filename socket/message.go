package socket

import (
	"bytes"
	"encoding/json"
	"errors"
)

const ChangeType = "change"

// Event is what the registry fans out to members of a document group.
type Event struct {
	DocumentID string          `json:"document_id"`
	UserID     string          `json:"user_id"`
	SessionID  string          `json:"session_id,omitempty"`
	Content    json.RawMessage `json:"content"`
}

type InboundMessage struct {
	Content json.RawMessage `json:"content"`
}

type OutboundMessage struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

var errMissingContent = errors.New("message has no content")

// decodeInbound returns the content of an edit frame. Unknown fields are
// ignored; a missing or null content is an error.
func decodeInbound(raw []byte) (json.RawMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	content := bytes.TrimSpace(msg.Content)
	if len(content) == 0 || bytes.Equal(content, []byte("null")) {
		return nil, errMissingContent
	}
	return content, nil
}

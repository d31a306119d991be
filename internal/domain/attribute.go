package domain

import "encoding/json"

const (
	AttributeGet = "get"
	AttributeSet = "set"
)

// AttributeRequest is one message of the attribute protocol. Value is only
// meaningful for "set"; UserID falls back to the connection's user when empty.
type AttributeRequest struct {
	Action        string      `json:"action"`
	AttributeName string      `json:"attribute_name"`
	Value         any         `json:"value,omitempty"`
	UserID        json.Number `json:"user_id,omitempty"`
}

// AttributeResult carries either a value or an error, never both.
type AttributeResult struct {
	AttributeName string `json:"attribute_name,omitempty"`
	Value         any    `json:"value,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (r AttributeResult) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}
	return json.Marshal(struct {
		AttributeName string `json:"attribute_name"`
		Value         any    `json:"value"`
	}{r.AttributeName, r.Value})
}

func AttributeValue(name string, value any) AttributeResult {
	return AttributeResult{AttributeName: name, Value: value}
}

func AttributeError(msg string) AttributeResult {
	return AttributeResult{Error: msg}
}

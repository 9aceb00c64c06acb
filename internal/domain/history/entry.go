package history

import "fmt"

// Action is the write that produced a snapshot.
type Action string

// Snapshot actions.
const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Entry is one stored snapshot of a document.
type Entry struct {
	ID     string         `json:"_id,omitempty"`
	DocID  string         `json:"docId"`
	Model  string         `json:"model"`
	User   string         `json:"-"`
	Action Action         `json:"action"`
	Data   map[string]any `json:"data"`
	At     int64          `json:"at"`
}

// NewEntry creates a snapshot. When fields is non-empty only those fields are kept.
func NewEntry(docID, model, user string, action Action, data map[string]any, fields []string, at int64) (Entry, error) {
	if docID == "" || model == "" || user == "" {
		return Entry{}, fmt.Errorf("history entry requires document, model and user")
	}
	switch action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return Entry{}, fmt.Errorf("invalid history action %q", action)
	}

	snap := make(map[string]any, len(data))
	if len(fields) == 0 {
		for k, v := range data {
			snap[k] = v
		}
	} else {
		for _, f := range fields {
			if v, ok := data[f]; ok {
				snap[f] = v
			}
		}
	}
	return Entry{DocID: docID, Model: model, User: user, Action: action, Data: snap, At: at}, nil
}

package buffer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EntityProfile = "profile"
	EntityTask    = "task"
)

// Replay priorities; lower keys drain first. Task writes share one priority so
// that they replay in the order they were accepted.
const (
	PriorityProfile = 3
	PriorityTask    = 4
)

// Item is a write that could not reach primary storage and waits for replay.
// Key names the record it targets: the task ID for tasks, the user ID for profiles.
type Item struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Key       string          `json:"key,omitempty"`
	Entity    string          `json:"entity"`
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
	Priority  int             `json:"priority"`
	Retries   int             `json:"retries"`
	Timestamp time.Time       `json:"timestamp"`

	bucketKey []byte
}

// NewItem encodes payload as the item's data.
func NewItem(entity, operation, userID string, payload interface{}) (Item, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Item{}, err
	}
	item := Item{
		UserID:    userID,
		Entity:    entity,
		Operation: operation,
		Data:      data,
		Priority:  PriorityTask,
	}
	if entity == EntityProfile {
		item.Priority = PriorityProfile
	}
	return item, nil
}

// Decode unmarshals the item's data into v.
func (i Item) Decode(v interface{}) error {
	return json.Unmarshal(i.Data, v)
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Priority <= 0 || i.Priority > 5 {
		i.Priority = PriorityTask
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
}

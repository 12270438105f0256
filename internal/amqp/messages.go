package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"markin/internal/core"
)

// MessageTypeFetchRecorded is the AMQP type of FetchRecordedMessage.
const MessageTypeFetchRecorded = "stats.fetch_recorded"

// FetchRecordedMessage announces that one upstream fetch was recorded.
// It carries only the record id; consumers read the record from the fetch log.
type FetchRecordedMessage struct {
	ID        int64             `json:"id"`
	Outcome   core.FetchOutcome `json:"outcome"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewFetchRecordedMessage creates a message stamped with the current time.
func NewFetchRecordedMessage(id int64, outcome core.FetchOutcome) *FetchRecordedMessage {
	return &FetchRecordedMessage{
		ID:        id,
		Outcome:   outcome,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *FetchRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FetchRecordedMessageFromJSON decodes and validates a message body.
func FetchRecordedMessageFromJSON(data []byte) (*FetchRecordedMessage, error) {
	var msg FetchRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID <= 0 {
		return nil, fmt.Errorf("invalid record id %d", msg.ID)
	}
	if !msg.Outcome.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidOutcome, msg.Outcome)
	}
	return &msg, nil
}

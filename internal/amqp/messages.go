package amqp

import (
	"encoding/json"
	"time"
)

// StatementClosedMessage announces that a statement was settled and its
// report should be generated. It carries only the id; the worker loads
// the full statement from the database so the payload never goes stale.
type StatementClosedMessage struct {
	StatementID int64     `json:"statementId"`
	CustomerID  int64     `json:"customerId"`
	Month       string    `json:"month"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewStatementClosedMessage(statementID, customerID int64, month string) *StatementClosedMessage {
	return &StatementClosedMessage{
		StatementID: statementID,
		CustomerID:  customerID,
		Month:       month,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *StatementClosedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// StatementClosedMessageFromJSON creates a message from JSON bytes
func StatementClosedMessageFromJSON(data []byte) (*StatementClosedMessage, error) {
	var msg StatementClosedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

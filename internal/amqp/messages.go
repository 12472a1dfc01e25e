package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Routing keys for income-detail events on the topic exchange.
const (
	RoutingDetailSaved   = "income.detail.saved"
	RoutingDetailDeleted = "income.detail.deleted"

	bindingDetailEvents = "income.detail.*"
)

// DetailEvent announces that an income detail changed. It carries only the
// owning key; consumers reload whatever they need from storage.
type DetailEvent struct {
	Event     string    `json:"event"`
	DetailID  string    `json:"detailId,omitempty"`
	UserID    string    `json:"userId"`
	TaxYear   int       `json:"taxYear"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

func NewDetailEvent(event, detailID, userID string, taxYear int, category string) *DetailEvent {
	return &DetailEvent{
		Event:     event,
		DetailID:  detailID,
		UserID:    userID,
		TaxYear:   taxYear,
		Category:  category,
		Timestamp: time.Now().UTC(),
	}
}

func (m *DetailEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DetailEventFromJSON decodes and sanity-checks a delivery body.
func DetailEventFromJSON(data []byte) (*DetailEvent, error) {
	var msg DetailEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" || msg.TaxYear == 0 {
		return nil, fmt.Errorf("detail event missing userId or taxYear")
	}
	return &msg, nil
}

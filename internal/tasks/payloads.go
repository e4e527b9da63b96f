package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type constants, shared by queue producers and consumers.
const (
	TypeElecIDCardGenerate   = "elecid:card"
	TypeApplicationSubmitted = "application:submitted"
)

// ElecIDCardPayload carries the minimum needed to render a share card.
type ElecIDCardPayload struct {
	ProfileID     uint   `json:"profile_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewElecIDCardTask builds a share-card generation task.
func NewElecIDCardTask(profileID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ElecIDCardPayload{
		ProfileID:     profileID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeElecIDCardGenerate, payload), nil
}

// ApplicationSubmittedPayload identifies a freshly stored application.
type ApplicationSubmittedPayload struct {
	ApplicationID uint   `json:"application_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewApplicationSubmittedTask builds the employer-notification task fired
// after an application is stored.
func NewApplicationSubmittedTask(applicationID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ApplicationSubmittedPayload{
		ApplicationID: applicationID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeApplicationSubmitted, payload), nil
}

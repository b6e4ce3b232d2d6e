package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// RunStatus is the lifecycle state of a recorded generation run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// GenerationRun is the persisted history of one generation request.
type GenerationRun struct {
	ID             string
	Prompt         string
	CandidateCount int
	Enriched       bool
	Locale         string
	Status         RunStatus
	ResultJSON     []byte
	ErrorMessage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PublishOutcome is the terminal state of a recorded publish.
type PublishOutcome string

const (
	PublishSucceeded PublishOutcome = "succeeded"
	PublishFailed    PublishOutcome = "failed"
)

// PublishRecord is the persisted history of one publish call.
type PublishRecord struct {
	ID           string
	MediaURL     string
	Caption      string
	MediaKind    string
	ContainerID  string
	MediaID      *string
	Outcome      PublishOutcome
	ErrorMessage *string
	CreatedAt    time.Time
}

package types

import "time"

// ContractRecord is one logical row per signer, keyed by lower-cased email.
type ContractRecord struct {
	Email       string         `json:"email" dynamodbav:"email"`
	Name        string         `json:"name" dynamodbav:"name"`
	SigningLink string         `json:"signingLink" dynamodbav:"signingLink"`
	EnvelopeID  string         `json:"envelopeId" dynamodbav:"envelopeId"`
	DocumentKey string         `json:"documentKey,omitempty" dynamodbav:"documentKey,omitempty"`
	Status      ContractStatus `json:"status" dynamodbav:"status"`
	CreatedAt   time.Time      `json:"createdAt" dynamodbav:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty" dynamodbav:"completedAt,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt" dynamodbav:"updatedAt"`
}

// Signer is the name and email extracted from an uploaded contract's object key.
type Signer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UploadEvent describes a completed upload into object storage.
type UploadEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
}

// DocumentRef locates a contract document in object storage.
type DocumentRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Notification is emitted after a record reaches a terminal status.
type Notification struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	Name           string         `json:"name"`
	EnvelopeID     string         `json:"envelopeId"`
	Status         ContractStatus `json:"status"`
	PreviousStatus ContractStatus `json:"previousStatus"`
	CompletedAt    time.Time      `json:"completedAt"`
	Timestamp      time.Time      `json:"timestamp"`
}

// NotifyConfig configures a single notification sink.
type NotifyConfig struct {
	Type     NotifyType `yaml:"type" json:"type"`
	URL      string     `yaml:"url,omitempty" json:"url,omitempty"`
	TopicARN string     `yaml:"topicArn,omitempty" json:"topicArn,omitempty"`
	From     string     `yaml:"from,omitempty" json:"from,omitempty"`
	To       []string   `yaml:"to,omitempty" json:"to,omitempty"`
	EventBus string     `yaml:"eventBus,omitempty" json:"eventBus,omitempty"`
	Bucket   string     `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix   string     `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// SweepRequest is the sweeper invocation payload. An empty EnvelopeID runs a
// full sweep; otherwise only that envelope is checked.
type SweepRequest struct {
	EnvelopeID string `json:"envelopeId,omitempty"`
	Email      string `json:"email,omitempty"`
}

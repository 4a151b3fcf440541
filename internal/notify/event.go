// Package notify carries new contact submissions to external systems.
package notify

import "time"

// TopicContactSubmitted is published once per stored submission.
const TopicContactSubmitted = "contact.submitted"

// SubmissionEvent is emitted after a submission has been stored.
type SubmissionEvent struct {
	ID              string    `json:"id"`
	Reference       string    `json:"reference"`
	Name            string    `json:"name"`
	Company         string    `json:"company"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	ProjectType     string    `json:"project_type"`
	ProjectValue    string    `json:"project_value,omitempty"`
	Location        string    `json:"location"`
	Message         string    `json:"message"`
	RequestProposal bool      `json:"request_proposal"`
	CreatedAt       time.Time `json:"created_at"`
	ClientIP        string    `json:"client_ip,omitempty"`
	UserAgent       string    `json:"user_agent,omitempty"`
}

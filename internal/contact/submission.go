// Package contact accepts contact-form submissions and reads them back for
// administrators.
package contact

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/serroba/contact-intake/internal/export"
	"github.com/serroba/contact-intake/internal/notify"
)

// Table holds stored submissions.
const Table = "contact_submissions"

// Columns of Table in storage order.
var Columns = []string{
	"id",
	"reference",
	"created_at",
	"email",
	"phone",
	"project_type",
	"project_value",
	"location",
	"message",
	"request_proposal",
}

// Source reads Table newest first.
func Source() export.Source {
	return export.Source{
		Table: Table,
		Order: export.Order{Column: "created_at", Descending: true},
	}
}

// Submission is one accepted contact request.
type Submission struct {
	ID              uuid.UUID
	Reference       string
	Name            string
	Company         string
	Email           string
	Phone           string
	ProjectType     string
	ProjectValue    string
	Location        string
	Message         string
	RequestProposal bool
	CreatedAt       time.Time
}

// StoredMessage folds sender and company into the message body.
func (s *Submission) StoredMessage() string {
	return fmt.Sprintf("Pengirim: %s\nInstansi: %s\n\nPesan: %s", s.Name, s.Company, s.Message)
}

// Values returns the stored values in Columns order.
func (s *Submission) Values() []any {
	var projectValue any
	if s.ProjectValue != "" {
		projectValue = s.ProjectValue
	}

	return []any{
		s.ID.String(),
		s.Reference,
		s.CreatedAt,
		s.Email,
		s.Phone,
		s.ProjectType,
		projectValue,
		s.Location,
		s.StoredMessage(),
		s.RequestProposal,
	}
}

// Row returns the submission as it is stored.
func (s *Submission) Row() export.Row {
	return export.NewRow(Columns, s.Values())
}

// Event builds the notification for a stored submission.
func (s *Submission) Event(meta Meta) *notify.SubmissionEvent {
	return &notify.SubmissionEvent{
		ID:              s.ID.String(),
		Reference:       s.Reference,
		Name:            s.Name,
		Company:         s.Company,
		Email:           s.Email,
		Phone:           s.Phone,
		ProjectType:     s.ProjectType,
		ProjectValue:    s.ProjectValue,
		Location:        s.Location,
		Message:         s.Message,
		RequestProposal: s.RequestProposal,
		CreatedAt:       s.CreatedAt,
		ClientIP:        meta.ClientIP,
		UserAgent:       meta.UserAgent,
	}
}

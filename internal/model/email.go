package model

import "time"

// EmailRecord (user_id, message_id) 唯一
type EmailRecord struct {
	ID                int64     `json:"id"`
	UserID            int       `json:"-"`
	MessageID         string    `json:"message_id"`
	ThreadID          string    `json:"thread_id"`
	CompanyName       string    `json:"company_name"`
	ApplicationStatus string    `json:"application_status"`
	ReceivedAt        time.Time `json:"received_at"`
	Subject           string    `json:"subject"`
	JobTitle          string    `json:"job_title"`
	Sender            string    `json:"sender"`
	PostingURL        string    `json:"posting_url,omitempty"`
	PostingSummary    string    `json:"posting_summary,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

package models

import "time"

// EmailTemplate is the HTML source a campaign renders per recipient.
type EmailTemplate struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Subject     string    `db:"subject" json:"subject"`
	HTMLContent string    `db:"html_content" json:"htmlContent"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

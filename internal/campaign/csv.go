package campaign

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/models"
)

// ImportResult carries the usable recipients plus one message per
// rejected line. A file can partially succeed.
type ImportResult struct {
	Recipients []models.Recipient `json:"recipients"`
	Errors     []string           `json:"errors,omitempty"`
}

// ImportRecipients parses a CSV with a header row. The email column is
// required; a name column maps to the recipient name; every other
// column becomes a recipient variable. Lines with a missing or
// malformed email are reported with their line number and skipped.
func ImportRecipients(r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errs.NewImportError("file is empty")
	}
	if err != nil {
		return nil, errs.NewImportError(err.Error())
	}

	emailCol := -1
	nameCol := -1
	for i, col := range header {
		lower := strings.ToLower(strings.TrimSpace(col))
		switch {
		case emailCol == -1 && strings.Contains(lower, "email"):
			emailCol = i
		case nameCol == -1 && strings.Contains(lower, "name"):
			nameCol = i
		}
	}
	if emailCol == -1 {
		return nil, errs.NewImportError("no email column in header")
	}

	result := &ImportResult{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		email := strings.TrimSpace(record[emailCol])
		if email == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: missing email", line))
			continue
		}
		if !emailRe.MatchString(email) {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: invalid email %q", line, email))
			continue
		}

		recipient := models.Recipient{Email: email}
		for i, value := range record {
			if i == emailCol {
				continue
			}
			value = strings.TrimSpace(value)
			if i == nameCol {
				recipient.Name = value
				continue
			}
			if i < len(header) && value != "" {
				if recipient.Variables == nil {
					recipient.Variables = make(map[string]interface{})
				}
				recipient.Variables[strings.TrimSpace(header[i])] = value
			}
		}
		result.Recipients = append(result.Recipients, recipient)
	}

	if len(result.Recipients) == 0 && len(result.Errors) > 0 {
		return result, errs.NewImportError("no valid recipients in file")
	}
	return result, nil
}

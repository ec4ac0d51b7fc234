package store

import (
	"context"
	"database/sql"
	"encoding/json"

	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/models"
)

// PreferenceStore reads and writes per-user notification preferences.
// A user with no saved row gets the documented defaults, never an error.
type PreferenceStore struct {
	DB *sql.DB
}

func NewPreferenceStore(db *sql.DB) *PreferenceStore {
	return &PreferenceStore{DB: db}
}

func (s *PreferenceStore) Get(ctx context.Context, userID string) (models.Preferences, error) {
	var p models.Preferences
	var reminders []byte
	var email, phone sql.NullString

	err := s.DB.QueryRowContext(ctx,
		`SELECT user_id, email_enabled, sms_enabled, push_enabled, in_app_enabled,
                default_reminder_minutes, notification_email, phone_number, timezone
         FROM notification_preferences
         WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.EmailEnabled, &p.SMSEnabled, &p.PushEnabled, &p.InAppEnabled,
		&reminders, &email, &phone, &p.Timezone)
	if err == sql.ErrNoRows {
		return models.DefaultPreferences(userID), nil
	}
	if err != nil {
		return models.Preferences{}, errs.NewStorageError("get preferences", err)
	}

	if len(reminders) > 0 {
		if err := json.Unmarshal(reminders, &p.DefaultReminderMinutes); err != nil {
			return models.Preferences{}, errs.NewStorageError("decode reminder minutes", err)
		}
	}
	p.NotificationEmail = email.String
	p.PhoneNumber = phone.String
	return p, nil
}

func (s *PreferenceStore) Upsert(ctx context.Context, p models.Preferences) error {
	reminders, err := json.Marshal(p.DefaultReminderMinutes)
	if err != nil {
		return errs.NewStorageError("encode reminder minutes", err)
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO notification_preferences
         (user_id, email_enabled, sms_enabled, push_enabled, in_app_enabled,
          default_reminder_minutes, notification_email, phone_number, timezone)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
         ON CONFLICT (user_id) DO UPDATE SET
           email_enabled = EXCLUDED.email_enabled,
           sms_enabled = EXCLUDED.sms_enabled,
           push_enabled = EXCLUDED.push_enabled,
           in_app_enabled = EXCLUDED.in_app_enabled,
           default_reminder_minutes = EXCLUDED.default_reminder_minutes,
           notification_email = EXCLUDED.notification_email,
           phone_number = EXCLUDED.phone_number,
           timezone = EXCLUDED.timezone`,
		p.UserID, p.EmailEnabled, p.SMSEnabled, p.PushEnabled, p.InAppEnabled,
		reminders, p.NotificationEmail, p.PhoneNumber, p.Timezone,
	)
	if err != nil {
		return errs.NewStorageError("upsert preferences", err)
	}
	return nil
}

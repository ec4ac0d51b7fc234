package models

// Preferences holds a user's notification channel settings and reminder
// defaults.
type Preferences struct {
	UserID                 string `db:"user_id" json:"userId"`
	EmailEnabled           bool   `db:"email_enabled" json:"emailEnabled"`
	SMSEnabled             bool   `db:"sms_enabled" json:"smsEnabled"`
	PushEnabled            bool   `db:"push_enabled" json:"pushEnabled"`
	InAppEnabled           bool   `db:"in_app_enabled" json:"inAppEnabled"`
	DefaultReminderMinutes []int  `db:"default_reminder_minutes" json:"defaultReminderMinutes"`
	NotificationEmail      string `db:"notification_email" json:"notificationEmail,omitempty"`
	PhoneNumber            string `db:"phone_number" json:"phoneNumber,omitempty"`
	Timezone               string `db:"timezone" json:"timezone"`
}

// DefaultPreferences returns the fallback settings used when a user has
// never saved preferences: 15- and 60-minute reminders over email, push
// and in-app, SMS off, UTC.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:                 userID,
		EmailEnabled:           true,
		SMSEnabled:             false,
		PushEnabled:            true,
		InAppEnabled:           true,
		DefaultReminderMinutes: []int{15, 60},
		Timezone:               "UTC",
	}
}

// EnabledChannels returns the channels the user has switched on.
func (p Preferences) EnabledChannels() []Channel {
	var channels []Channel
	if p.EmailEnabled {
		channels = append(channels, ChannelEmail)
	}
	if p.SMSEnabled {
		channels = append(channels, ChannelSMS)
	}
	if p.PushEnabled {
		channels = append(channels, ChannelPush)
	}
	if p.InAppEnabled {
		channels = append(channels, ChannelInApp)
	}
	return channels
}

// Package render produces per-channel notification content and performs
// placeholder substitution for campaign templates.
package render

import (
	"fmt"
	"strings"

	"delivery-pipeline/internal/common/logger"
	"delivery-pipeline/internal/models"
)

// Renderer formats reminder content for each delivery channel.
type Renderer struct {
	logger logger.Logger
}

func New(log logger.Logger) *Renderer {
	return &Renderer{logger: log}
}

// Render builds the subject and body for one reminder on one channel.
// An unknown channel falls back to a generic rendering and is logged;
// rendering must never block scheduling.
func (r *Renderer) Render(channel models.Channel, event models.SourceEvent, reminderMinutes int) (subject, body string) {
	eventTime := ""
	if event.StartTime != "" {
		eventTime = " at " + event.StartTime
	}

	switch channel {
	case models.ChannelEmail:
		subject = "Reminder: " + event.Title
		location := event.Location
		if location == "" {
			location = "No location specified"
		}
		var b strings.Builder
		b.WriteString("Hello!\n\n")
		b.WriteString("This is a reminder for your event:\n\n")
		fmt.Fprintf(&b, "📅 %s\n", event.Title)
		fmt.Fprintf(&b, "📍 %s\n", location)
		fmt.Fprintf(&b, "🕐 %s%s\n", event.Date, eventTime)
		if event.Note != "" {
			fmt.Fprintf(&b, "\nNotes: %s\n", event.Note)
		}
		b.WriteString("\nBest regards,\nYour Management System")
		body = b.String()

	case models.ChannelSMS:
		subject = "Reminder: " + event.Title
		body = fmt.Sprintf("Reminder: %s on %s%s", event.Title, event.Date, eventTime)
		if event.Location != "" {
			body += " at " + event.Location
		}

	case models.ChannelPush:
		subject = "Reminder: " + event.Title
		body = fmt.Sprintf("%s: %s%s", humanizeMinutes(reminderMinutes), event.Title, eventTime)

	case models.ChannelInApp:
		subject = event.Title
		body = fmt.Sprintf("%s for %q%s", humanizeMinutes(reminderMinutes), event.Title, eventTime)

	default:
		r.logger.Warn("unknown channel, using fallback rendering", map[string]interface{}{
			"channel": string(channel),
			"eventId": event.ID,
		})
		subject = event.Title
		body = "Reminder for " + event.Title
	}

	return subject, body
}

// humanizeMinutes converts a reminder offset to a lead-in like
// "15 minutes", "2 hours" or "1 day".
func humanizeMinutes(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	if minutes < 1440 {
		hours := minutes / 60
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := minutes / 1440
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

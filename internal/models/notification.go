package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification categories shared with notification preferences.
const (
	NotificationMessages      = "messages"
	NotificationApplications  = "applications"
	NotificationEvents        = "events"
	NotificationMarketplace   = "marketplace"
	NotificationVisaUpdates   = "visa_updates"
	NotificationAuPairMatches = "au_pair_matches"
)

// Notification represents an in-app notification targeted to a specific user.
type Notification struct {
	ID        string            `gorm:"primaryKey;size:36" json:"id"`
	UserID    string            `gorm:"size:64;index" json:"user_id"`
	Type      string            `gorm:"size:64" json:"type"`
	Title     string            `gorm:"size:255" json:"title"`
	Message   string            `gorm:"type:text" json:"message"`
	LinkURL   *string           `gorm:"type:text" json:"link_url,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	IsRead    bool              `gorm:"not null;default:false;index" json:"is_read"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NotificationPreference stores per-category delivery switches for a user.
type NotificationPreference struct {
	UserID             string    `gorm:"primaryKey;size:64" json:"user_id"`
	EmailMessages      bool      `gorm:"not null" json:"email_messages"`
	EmailApplications  bool      `gorm:"not null" json:"email_applications"`
	EmailEvents        bool      `gorm:"not null" json:"email_events"`
	EmailMarketplace   bool      `gorm:"not null" json:"email_marketplace"`
	EmailVisaUpdates   bool      `gorm:"not null" json:"email_visa_updates"`
	EmailAuPairMatches bool      `gorm:"not null" json:"email_au_pair_matches"`
	InAppMessages      bool      `gorm:"not null" json:"in_app_messages"`
	InAppApplications  bool      `gorm:"not null" json:"in_app_applications"`
	InAppEvents        bool      `gorm:"not null" json:"in_app_events"`
	InAppMarketplace   bool      `gorm:"not null" json:"in_app_marketplace"`
	InAppVisaUpdates   bool      `gorm:"not null" json:"in_app_visa_updates"`
	InAppAuPairMatches bool      `gorm:"not null" json:"in_app_au_pair_matches"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultNotificationPreference returns a preference row with every channel enabled.
func DefaultNotificationPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:             userID,
		EmailMessages:      true,
		EmailApplications:  true,
		EmailEvents:        true,
		EmailMarketplace:   true,
		EmailVisaUpdates:   true,
		EmailAuPairMatches: true,
		InAppMessages:      true,
		InAppApplications:  true,
		InAppEvents:        true,
		InAppMarketplace:   true,
		InAppVisaUpdates:   true,
		InAppAuPairMatches: true,
	}
}

// AllowsInApp reports whether an in-app notification of the category may be created.
// Unknown categories are always allowed.
func (p NotificationPreference) AllowsInApp(category string) bool {
	switch category {
	case NotificationMessages:
		return p.InAppMessages
	case NotificationApplications:
		return p.InAppApplications
	case NotificationEvents:
		return p.InAppEvents
	case NotificationMarketplace:
		return p.InAppMarketplace
	case NotificationVisaUpdates:
		return p.InAppVisaUpdates
	case NotificationAuPairMatches:
		return p.InAppAuPairMatches
	default:
		return true
	}
}

// AllowsEmail reports whether an email of the category may be sent.
func (p NotificationPreference) AllowsEmail(category string) bool {
	switch category {
	case NotificationMessages:
		return p.EmailMessages
	case NotificationApplications:
		return p.EmailApplications
	case NotificationEvents:
		return p.EmailEvents
	case NotificationMarketplace:
		return p.EmailMarketplace
	case NotificationVisaUpdates:
		return p.EmailVisaUpdates
	case NotificationAuPairMatches:
		return p.EmailAuPairMatches
	default:
		return true
	}
}

package dto

import (
	"time"

	"github.com/noah-isme/linkup-messaging-api/internal/models"
)

// NotificationCreateRequest describes the payload to create a notification.
type NotificationCreateRequest struct {
	UserID    string                 `json:"user_id" validate:"required,max=64"`
	Type      string                 `json:"type" validate:"required,max=64"`
	Title     string                 `json:"title" validate:"required,min=1,max=255"`
	Message   string                 `json:"message" validate:"required,min=1,max=2000"`
	LinkURL   *string                `json:"link_url" validate:"omitempty,max=2048"`
	Metadata  map[string]interface{} `json:"metadata"`
	SendEmail bool                   `json:"send_email"`
	UserEmail string                 `json:"user_email" validate:"omitempty,email"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	LinkURL   *string                `json:"link_url,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	IsRead    bool                   `json:"is_read"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Type:      model.Type,
		Title:     model.Title,
		Message:   model.Message,
		LinkURL:   model.LinkURL,
		Metadata:  map[string]interface{}(model.Metadata),
		IsRead:    model.IsRead,
		ReadAt:    model.ReadAt,
		CreatedAt: model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}

// UnreadCountResponse aggregates the counters shown on the notification bell and inbox badge.
type UnreadCountResponse struct {
	Notifications int64 `json:"notifications"`
	Messages      int64 `json:"messages"`
}

// NotificationPreferencesUpdateRequest toggles delivery channels; nil fields are left untouched.
type NotificationPreferencesUpdateRequest struct {
	EmailMessages      *bool `json:"email_messages"`
	EmailApplications  *bool `json:"email_applications"`
	EmailEvents        *bool `json:"email_events"`
	EmailMarketplace   *bool `json:"email_marketplace"`
	EmailVisaUpdates   *bool `json:"email_visa_updates"`
	EmailAuPairMatches *bool `json:"email_au_pair_matches"`
	InAppMessages      *bool `json:"in_app_messages"`
	InAppApplications  *bool `json:"in_app_applications"`
	InAppEvents        *bool `json:"in_app_events"`
	InAppMarketplace   *bool `json:"in_app_marketplace"`
	InAppVisaUpdates   *bool `json:"in_app_visa_updates"`
	InAppAuPairMatches *bool `json:"in_app_au_pair_matches"`
}

// Apply copies the non-nil switches onto the stored preference.
func (r NotificationPreferencesUpdateRequest) Apply(pref *models.NotificationPreference) {
	assign := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}

	assign(&pref.EmailMessages, r.EmailMessages)
	assign(&pref.EmailApplications, r.EmailApplications)
	assign(&pref.EmailEvents, r.EmailEvents)
	assign(&pref.EmailMarketplace, r.EmailMarketplace)
	assign(&pref.EmailVisaUpdates, r.EmailVisaUpdates)
	assign(&pref.EmailAuPairMatches, r.EmailAuPairMatches)
	assign(&pref.InAppMessages, r.InAppMessages)
	assign(&pref.InAppApplications, r.InAppApplications)
	assign(&pref.InAppEvents, r.InAppEvents)
	assign(&pref.InAppMarketplace, r.InAppMarketplace)
	assign(&pref.InAppVisaUpdates, r.InAppVisaUpdates)
	assign(&pref.InAppAuPairMatches, r.InAppAuPairMatches)
}

// NotificationPublishResult reports which channels a notification went out on.
type NotificationPublishResult struct {
	Notification *NotificationResponse `json:"notification,omitempty"`
	InApp        bool                  `json:"in_app"`
	EmailQueued  bool                  `json:"email_queued"`
}

// NotificationPreferencesResponse is the serialized preference row.
type NotificationPreferencesResponse struct {
	UserID             string    `json:"user_id"`
	EmailMessages      bool      `json:"email_messages"`
	EmailApplications  bool      `json:"email_applications"`
	EmailEvents        bool      `json:"email_events"`
	EmailMarketplace   bool      `json:"email_marketplace"`
	EmailVisaUpdates   bool      `json:"email_visa_updates"`
	EmailAuPairMatches bool      `json:"email_au_pair_matches"`
	InAppMessages      bool      `json:"in_app_messages"`
	InAppApplications  bool      `json:"in_app_applications"`
	InAppEvents        bool      `json:"in_app_events"`
	InAppMarketplace   bool      `json:"in_app_marketplace"`
	InAppVisaUpdates   bool      `json:"in_app_visa_updates"`
	InAppAuPairMatches bool      `json:"in_app_au_pair_matches"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewNotificationPreferencesResponse converts a preference row.
func NewNotificationPreferencesResponse(pref models.NotificationPreference) NotificationPreferencesResponse {
	return NotificationPreferencesResponse{
		UserID:             pref.UserID,
		EmailMessages:      pref.EmailMessages,
		EmailApplications:  pref.EmailApplications,
		EmailEvents:        pref.EmailEvents,
		EmailMarketplace:   pref.EmailMarketplace,
		EmailVisaUpdates:   pref.EmailVisaUpdates,
		EmailAuPairMatches: pref.EmailAuPairMatches,
		InAppMessages:      pref.InAppMessages,
		InAppApplications:  pref.InAppApplications,
		InAppEvents:        pref.InAppEvents,
		InAppMarketplace:   pref.InAppMarketplace,
		InAppVisaUpdates:   pref.InAppVisaUpdates,
		InAppAuPairMatches: pref.InAppAuPairMatches,
		UpdatedAt:          pref.UpdatedAt,
	}
}

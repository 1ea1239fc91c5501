package service

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/models"
)

// AttachmentPlaceholder is stored as content for attachment-only messages.
const AttachmentPlaceholder = "Sent an attachment"

var (
	// ErrEmptyMessage indicates neither text nor an attachment was supplied.
	ErrEmptyMessage = errors.New("message content or an attachment is required")
	// ErrMessageTypeForbidden indicates the caller may not send the requested message type.
	ErrMessageTypeForbidden = errors.New("message type not allowed for sender")
)

type messageComposer struct {
	validator *validator.Validate
	sanitizer *bluemonday.Policy
}

func newMessageComposer(validate *validator.Validate) *messageComposer {
	if validate == nil {
		validate = validator.New()
	}
	return &messageComposer{
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// compose validates the request and builds the row to insert. Markup is stripped; the
// stored content is plain text.
func (c *messageComposer) compose(sender Identity, conversationID string, req dto.SendMessageRequest) (models.Message, error) {
	if err := c.validator.Struct(req); err != nil {
		return models.Message{}, err
	}

	messageType := strings.ToLower(strings.TrimSpace(req.MessageType))
	if messageType == "" {
		messageType = models.MessageTypeUser
	}
	if messageType == models.MessageTypeAdmin && !sender.IsAdmin() {
		return models.Message{}, ErrMessageTypeForbidden
	}

	message := models.Message{
		ConversationID: conversationID,
		SenderID:       sender.ID,
		MessageType:    messageType,
		MeetingID:      trimmedOrNil(req.MeetingID),
		CreatedAt:      time.Now().UTC(),
	}

	content := req.Content
	if req.Body != nil {
		switch req.Body.Kind {
		case dto.BodyLocalized:
			key := strings.TrimSpace(req.Body.Key)
			message.ContentKey = &key
			message.ContentParams = req.Body.Params
			content = req.Body.Text
			if strings.TrimSpace(content) == "" {
				content = key
			}
		default:
			if strings.TrimSpace(req.Body.Text) != "" {
				content = req.Body.Text
			}
		}
	}
	content = plainText(c.sanitizer, content)

	if len(req.Attachments) > 0 {
		attachment := req.Attachments[0]
		url := strings.TrimSpace(attachment.URL)
		kind := strings.TrimSpace(attachment.Type)
		name := strings.TrimSpace(attachment.Name)
		message.AttachmentURL = &url
		message.AttachmentType = &kind
		message.AttachmentName = &name
	}

	if content == "" {
		if message.AttachmentURL == nil {
			return models.Message{}, ErrEmptyMessage
		}
		content = AttachmentPlaceholder
	}
	message.Content = content

	return message, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

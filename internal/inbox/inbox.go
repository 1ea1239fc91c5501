package inbox

import (
	"context"
	"errors"
	"mime/multipart"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/models"
	"github.com/noah-isme/linkup-messaging-api/internal/realtime"
	"github.com/noah-isme/linkup-messaging-api/internal/service"
)

// Sidebar bounds in pixels.
const (
	MinSidebarWidth     = 280
	MaxSidebarWidth     = 600
	DefaultSidebarWidth = 360

	defaultMeetingLength = time.Hour
	inboxPath            = "/messages"
	deletePrompt         = "Delete this conversation? This cannot be undone."
)

// Filters understood by SetFilter besides the conversation context types.
const (
	FilterAll    = "all"
	FilterUnread = "unread"
)

var (
	// ErrNoSelection indicates the operation needs a selected conversation.
	ErrNoSelection = errors.New("no conversation selected")
	// ErrSendInProgress indicates a send is already in flight.
	ErrSendInProgress = errors.New("a message is already being sent")
	// ErrEmptyDraft indicates there is nothing to send.
	ErrEmptyDraft = errors.New("type a message or add an attachment")
	// ErrClosed indicates the inbox was torn down.
	ErrClosed = errors.New("inbox is closed")
)

// State is the inbox view state.
type State string

const (
	StateNoSelection          State = "no_selection"
	StateConversationSelected State = "conversation_selected"
	StateSending              State = "sending"
	StateReceiving            State = "receiving"
	StateScheduling           State = "scheduling"
	StateDeleting             State = "deleting"
)

// Navigator mirrors the selected conversation into the navigable URL.
type Navigator interface {
	Replace(location string)
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer func(prompt string) bool

// Options configures an Inbox.
type Options struct {
	Navigator Navigator
	Confirm   Confirmer
}

// Draft is the unsent input of the selected conversation.
type Draft struct {
	Content     string
	Attachments []dto.Attachment
}

func (d Draft) empty() bool {
	return strings.TrimSpace(d.Content) == "" && len(d.Attachments) == 0
}

// MeetingDraft is the schedule form. A zero End means one hour after Start.
type MeetingDraft struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Platform    *string
	Location    *string
	MeetingLink *string
}

// View is a consistent snapshot of the inbox for rendering.
type View struct {
	State         State
	Conversations []dto.ConversationSummary
	Filter        string
	Search        string
	SelectedID    string
	Messages      []dto.MessageResponse
	OtherPresence *dto.PresenceResponse
	Draft         Draft
	SendDisabled  bool
	Loading       bool
	Err           error
	SidebarWidth  int
}

// Inbox is the headless inbox view of one signed-in user: conversation list, selected
// thread, draft and live subscriptions. Methods are safe for concurrent use.
type Inbox struct {
	backend   Backend
	navigator Navigator
	confirm   Confirmer
	identity  service.Identity
	userID    string
	logger    zerolog.Logger

	mu            sync.Mutex
	conversations []dto.ConversationSummary
	visible       []dto.ConversationSummary
	filter        string
	search        string
	selectedID    string
	messages      []dto.MessageResponse
	presence      *dto.PresenceResponse
	draft         Draft
	busy          State
	loading       bool
	lastErr       error
	sidebarWidth  int
	messageSub    realtime.Subscription
	presenceSub   realtime.Subscription
	closed        bool
}

// New builds an inbox for the identity bound to ctx.
func New(ctx context.Context, backend Backend, opts Options, logger zerolog.Logger) (*Inbox, error) {
	identity, err := service.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return &Inbox{
		backend:      backend,
		navigator:    opts.Navigator,
		confirm:      opts.Confirm,
		identity:     identity,
		userID:       identity.ID,
		logger:       logger.With().Str("component", "inbox").Str("user_id", identity.ID).Logger(),
		filter:       FilterAll,
		sidebarWidth: DefaultSidebarWidth,
	}, nil
}

// Load fetches the conversation list.
func (i *Inbox) Load(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ErrClosed
	}
	i.loading = true
	i.mu.Unlock()

	conversations, err := i.backend.Conversations(ctx)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.loading = false
	if err != nil {
		i.lastErr = err
		return err
	}
	i.conversations = conversations
	i.refilter()
	return nil
}

// Select opens a conversation: live subscription, message load, mark-read, presence of
// the other participant and URL sync.
func (i *Inbox) Select(ctx context.Context, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return ErrNoSelection
	}

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ErrClosed
	}
	previous := i.detach()
	i.selectedID = conversationID
	i.messages = nil
	i.presence = nil
	i.draft = Draft{}
	i.lastErr = nil
	i.loading = true
	otherID := i.otherParticipant(conversationID)
	i.mu.Unlock()

	unsubscribe(previous...)
	i.navigate(conversationID)

	liveCtx := i.liveContext(ctx)
	messageSub := i.backend.WatchMessages(conversationID, func(message dto.MessageResponse) {
		i.receive(liveCtx, conversationID, message)
	})
	var presenceSub realtime.Subscription
	if otherID != "" {
		presenceSub = i.backend.WatchPresence(otherID, func(presence dto.PresenceResponse) {
			i.presenceChanged(conversationID, presence)
		})
	}
	if !i.attach(conversationID, messageSub, presenceSub) {
		unsubscribe(messageSub, presenceSub)
		return nil
	}

	messages, err := i.backend.Messages(ctx, conversationID)

	i.mu.Lock()
	if i.selectedID != conversationID {
		i.mu.Unlock()
		return nil
	}
	i.loading = false
	if err != nil {
		i.lastErr = err
		i.mu.Unlock()
		return err
	}
	for _, message := range messages {
		i.merge(message)
	}
	i.mu.Unlock()

	i.markRead(ctx, conversationID)

	if otherID != "" {
		presence, err := i.backend.Presence(ctx, otherID)
		if err != nil {
			i.logger.Warn().Err(err).Str("other_user_id", otherID).Msg("failed to load presence")
		} else {
			i.presenceChanged(conversationID, presence)
		}
	}
	return nil
}

// SetDraft replaces the draft text.
func (i *Inbox) SetDraft(content string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.draft.Content = content
}

// Attach uploads a file and puts it on the draft, replacing any previous attachment.
func (i *Inbox) Attach(ctx context.Context, file *multipart.FileHeader) (dto.Attachment, error) {
	uploaded, err := i.backend.UploadAttachment(ctx, file)
	if err != nil {
		i.mu.Lock()
		i.lastErr = err
		i.mu.Unlock()
		return dto.Attachment{}, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.draft.Attachments = []dto.Attachment{uploaded.Attachment}
	return uploaded.Attachment, nil
}

// Send posts the draft optimistically: the input is cleared before the call and restored
// when it fails so the user can retry.
func (i *Inbox) Send(ctx context.Context) (dto.MessageResponse, error) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return dto.MessageResponse{}, ErrClosed
	}
	if i.selectedID == "" {
		i.mu.Unlock()
		return dto.MessageResponse{}, ErrNoSelection
	}
	if i.busy == StateSending {
		i.mu.Unlock()
		return dto.MessageResponse{}, ErrSendInProgress
	}
	draft := i.draft
	if draft.empty() {
		i.mu.Unlock()
		return dto.MessageResponse{}, ErrEmptyDraft
	}
	conversationID := i.selectedID
	i.draft = Draft{}
	i.busy = StateSending
	i.lastErr = nil
	i.mu.Unlock()

	sent, err := i.backend.Send(ctx, conversationID, dto.SendMessageRequest{
		Content:     strings.TrimSpace(draft.Content),
		MessageType: models.MessageTypeUser,
		Attachments: draft.Attachments,
	})

	i.mu.Lock()
	defer i.mu.Unlock()
	i.busy = ""
	if err != nil {
		if i.selectedID == conversationID && i.draft.empty() {
			i.draft = draft
		}
		i.lastErr = err
		return dto.MessageResponse{}, err
	}
	if i.selectedID == conversationID {
		i.merge(sent)
	}
	i.touch(sent)
	return sent, nil
}

// Schedule creates a meeting with the other participant of the selected conversation.
// The announcement reaches the thread through the live channel.
func (i *Inbox) Schedule(ctx context.Context, draft MeetingDraft) (dto.MeetingResponse, error) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return dto.MeetingResponse{}, ErrClosed
	}
	if i.selectedID == "" {
		i.mu.Unlock()
		return dto.MeetingResponse{}, ErrNoSelection
	}
	conversationID := i.selectedID
	recipientID := i.otherParticipant(conversationID)
	i.busy = StateScheduling
	i.mu.Unlock()

	end := draft.End
	if end.IsZero() {
		end = draft.Start.Add(defaultMeetingLength)
	}

	meeting, err := i.backend.ScheduleMeeting(ctx, dto.ScheduleMeetingRequest{
		ConversationID: conversationID,
		RecipientID:    recipientID,
		Title:          draft.Title,
		Description:    draft.Description,
		StartTime:      draft.Start,
		EndTime:        end,
		Platform:       draft.Platform,
		Location:       draft.Location,
		MeetingLink:    draft.MeetingLink,
	})

	i.mu.Lock()
	defer i.mu.Unlock()
	i.busy = ""
	if err != nil {
		i.lastErr = err
		return dto.MeetingResponse{}, err
	}
	return meeting, nil
}

// Delete removes a conversation after confirmation. It reports false when the user
// declined. On success the entry leaves the canonical and filtered lists together and the
// selection is cleared when it pointed at the deleted conversation.
func (i *Inbox) Delete(ctx context.Context, conversationID string) (bool, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return false, ErrNoSelection
	}
	if i.confirm == nil || !i.confirm(deletePrompt) {
		return false, nil
	}

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return false, ErrClosed
	}
	i.busy = StateDeleting
	i.mu.Unlock()

	err := i.backend.DeleteConversation(ctx, conversationID)

	i.mu.Lock()
	i.busy = ""
	if err != nil {
		i.lastErr = err
		i.mu.Unlock()
		return false, err
	}

	kept := i.conversations[:0:0]
	for _, conversation := range i.conversations {
		if conversation.ID != conversationID {
			kept = append(kept, conversation)
		}
	}
	i.conversations = kept
	i.refilter()

	var subs []realtime.Subscription
	wasSelected := i.selectedID == conversationID
	if wasSelected {
		subs = i.detach()
		i.selectedID = ""
		i.messages = nil
		i.presence = nil
		i.draft = Draft{}
	}
	i.mu.Unlock()

	unsubscribe(subs...)
	if wasSelected {
		i.navigate("")
	}
	return true, nil
}

// SetFilter narrows the list to FilterAll, FilterUnread or a conversation context type.
func (i *Inbox) SetFilter(filter string) {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		filter = FilterAll
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.filter = filter
	i.refilter()
}

// SetSearch matches the other participant's name or email, the related item title and the
// last message preview, case-insensitively.
func (i *Inbox) SetSearch(query string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.search = strings.ToLower(strings.TrimSpace(query))
	i.refilter()
}

// Resize sets the sidebar width, clamped to [MinSidebarWidth, MaxSidebarWidth].
func (i *Inbox) Resize(width int) int {
	if width < MinSidebarWidth {
		width = MinSidebarWidth
	}
	if width > MaxSidebarWidth {
		width = MaxSidebarWidth
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sidebarWidth = width
	return width
}

// DismissError clears the inline error.
func (i *Inbox) DismissError() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastErr = nil
}

// View returns a snapshot for rendering.
func (i *Inbox) View() View {
	i.mu.Lock()
	defer i.mu.Unlock()

	state := i.busy
	if state == "" {
		state = StateNoSelection
		if i.selectedID != "" {
			state = StateConversationSelected
		}
	}

	view := View{
		State:         state,
		Conversations: append([]dto.ConversationSummary(nil), i.visible...),
		Filter:        i.filter,
		Search:        i.search,
		SelectedID:    i.selectedID,
		Messages:      append([]dto.MessageResponse(nil), i.messages...),
		Draft: Draft{
			Content:     i.draft.Content,
			Attachments: append([]dto.Attachment(nil), i.draft.Attachments...),
		},
		SendDisabled: i.busy == StateSending || i.selectedID == "",
		Loading:      i.loading,
		Err:          i.lastErr,
		SidebarWidth: i.sidebarWidth,
	}
	if i.presence != nil {
		presence := *i.presence
		view.OtherPresence = &presence
	}
	return view
}

// Close tears down every live subscription. The inbox is unusable afterwards.
func (i *Inbox) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	subs := i.detach()
	i.mu.Unlock()

	unsubscribe(subs...)
}

// liveContext outlives the Select call: live callbacks keep working after a
// request-scoped ctx is cancelled and always act as the inbox owner.
func (i *Inbox) liveContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return service.ContextWithIdentity(context.WithoutCancel(ctx), i.identity)
}

func (i *Inbox) receive(ctx context.Context, conversationID string, message dto.MessageResponse) {
	i.mu.Lock()
	if i.closed || i.selectedID != conversationID || message.ConversationID != conversationID {
		i.mu.Unlock()
		return
	}
	added := i.merge(message)
	i.touch(message)
	if !added || message.SenderID == i.userID {
		i.mu.Unlock()
		return
	}
	receiving := i.busy == ""
	if receiving {
		i.busy = StateReceiving
	}
	i.mu.Unlock()

	i.markRead(ctx, conversationID)

	if receiving {
		i.mu.Lock()
		if i.busy == StateReceiving {
			i.busy = ""
		}
		i.mu.Unlock()
	}
}

func (i *Inbox) presenceChanged(conversationID string, presence dto.PresenceResponse) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.selectedID != conversationID {
		return
	}
	i.presence = &presence
}

func (i *Inbox) markRead(ctx context.Context, conversationID string) {
	if _, err := i.backend.MarkRead(ctx, conversationID); err != nil {
		i.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to mark conversation read")
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.selectedID == conversationID {
		for idx := range i.messages {
			if i.messages[idx].SenderID != i.userID {
				i.messages[idx].Read = true
			}
		}
	}
	for idx := range i.conversations {
		if i.conversations[idx].ID == conversationID {
			i.conversations[idx].UnreadCount = 0
		}
	}
	i.refilter()
}

// merge inserts the message unless its id is already present and keeps the thread in
// creation order. Callers hold i.mu.
func (i *Inbox) merge(message dto.MessageResponse) bool {
	for idx := range i.messages {
		if i.messages[idx].ID == message.ID {
			if message.Read {
				i.messages[idx].Read = true
			}
			return false
		}
	}
	i.messages = append(i.messages, message)
	sort.SliceStable(i.messages, func(a, b int) bool {
		left, right := i.messages[a], i.messages[b]
		if !left.CreatedAt.Equal(right.CreatedAt) {
			return left.CreatedAt.Before(right.CreatedAt)
		}
		return left.ID < right.ID
	})
	return true
}

// touch moves the message's conversation to the top of the list with a fresh preview.
// Callers hold i.mu.
func (i *Inbox) touch(message dto.MessageResponse) {
	for idx := range i.conversations {
		conversation := &i.conversations[idx]
		if conversation.ID != message.ConversationID {
			continue
		}
		if message.CreatedAt.Before(conversation.LastMessageAt) {
			return
		}
		conversation.LastMessageAt = message.CreatedAt
		conversation.LastMessage = &dto.LastMessageSummary{
			Content:     message.Content,
			CreatedAt:   message.CreatedAt,
			SenderID:    message.SenderID,
			MessageType: message.MessageType,
		}
		break
	}
	sort.SliceStable(i.conversations, func(a, b int) bool {
		return i.conversations[a].LastMessageAt.After(i.conversations[b].LastMessageAt)
	})
	i.refilter()
}

// refilter derives the visible list from the canonical one. Callers hold i.mu.
func (i *Inbox) refilter() {
	visible := make([]dto.ConversationSummary, 0, len(i.conversations))
	for _, conversation := range i.conversations {
		if i.matches(conversation) {
			visible = append(visible, conversation)
		}
	}
	i.visible = visible
}

func (i *Inbox) matches(conversation dto.ConversationSummary) bool {
	switch i.filter {
	case FilterAll:
	case FilterUnread:
		if conversation.UnreadCount == 0 {
			return false
		}
	default:
		if conversation.ContextType == nil || !strings.EqualFold(*conversation.ContextType, i.filter) {
			return false
		}
	}

	if i.search == "" {
		return true
	}
	fields := []string{conversation.OtherUser.Email}
	if conversation.OtherUser.FullName != nil {
		fields = append(fields, *conversation.OtherUser.FullName)
	}
	if conversation.RelatedItemTitle != nil {
		fields = append(fields, *conversation.RelatedItemTitle)
	}
	if conversation.LastMessage != nil {
		fields = append(fields, conversation.LastMessage.Content)
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), i.search) {
			return true
		}
	}
	return false
}

func (i *Inbox) otherParticipant(conversationID string) string {
	for _, conversation := range i.conversations {
		if conversation.ID == conversationID {
			return conversation.OtherUser.ID
		}
	}
	return ""
}

// attach stores the subscriptions of the selected conversation. It reports false when the
// selection moved on in the meantime.
func (i *Inbox) attach(conversationID string, messageSub, presenceSub realtime.Subscription) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed || i.selectedID != conversationID {
		return false
	}
	i.messageSub = messageSub
	i.presenceSub = presenceSub
	return true
}

// detach hands back the current subscriptions for the caller to cancel outside the lock:
// Unsubscribe waits for a running callback, and callbacks take i.mu.
func (i *Inbox) detach() []realtime.Subscription {
	subs := []realtime.Subscription{i.messageSub, i.presenceSub}
	i.messageSub = nil
	i.presenceSub = nil
	return subs
}

func (i *Inbox) navigate(conversationID string) {
	if i.navigator == nil {
		return
	}
	location := inboxPath
	if conversationID != "" {
		location += "?" + url.Values{"conversation": []string{conversationID}}.Encode()
	}
	i.navigator.Replace(location)
}

func unsubscribe(subs ...realtime.Subscription) {
	for _, sub := range subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

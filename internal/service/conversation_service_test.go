package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/models"
)

func TestCreateOrGetIsIdempotent(t *testing.T) {
	suite := newMessagingSuite(t)

	first, err := suite.conversations.CreateOrGet(asUser("alice"), dto.CreateConversationRequest{OtherUserID: "bob"})
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := suite.conversations.CreateOrGet(asUser("alice"), dto.CreateConversationRequest{OtherUserID: "bob"})
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.ConversationID, second.ConversationID)

	fromOtherSide, err := suite.conversations.CreateOrGet(asUser("bob"), dto.CreateConversationRequest{OtherUserID: "alice", ContextType: models.ContextMarketplace})
	require.NoError(t, err)
	require.Equal(t, first.ConversationID, fromOtherSide.ConversationID, "one thread per pair regardless of context")
}

func TestCreateOrGetConcurrentInitiationYieldsOneRow(t *testing.T) {
	suite := newMessagingSuite(t)

	const rounds = 8
	ids := make([]string, rounds*2)
	errs := make([]error, rounds*2)
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			hello := "hello from alice"
			resp, err := suite.conversations.CreateOrGet(asUser("alice"), dto.CreateConversationRequest{OtherUserID: "bob", InitialMessage: &hello})
			ids[i*2], errs[i*2] = resp.ConversationID, err
		}(i)
		go func(i int) {
			defer wg.Done()
			hello := "hello from bob"
			resp, err := suite.conversations.CreateOrGet(asUser("bob"), dto.CreateConversationRequest{OtherUserID: "alice", InitialMessage: &hello})
			ids[i*2+1], errs[i*2+1] = resp.ConversationID, err
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}

	var conversations, participants, messages int64
	require.NoError(t, suite.db.Model(&models.Conversation{}).Count(&conversations).Error)
	require.NoError(t, suite.db.Model(&models.ConversationParticipant{}).Count(&participants).Error)
	require.NoError(t, suite.db.Model(&models.Message{}).Count(&messages).Error)
	require.Equal(t, int64(1), conversations)
	require.Equal(t, int64(2), participants)
	require.Equal(t, int64(rounds*2), messages, "every initial message lands in the shared thread")
}

func TestJobInterestScenario(t *testing.T) {
	suite := newMessagingSuite(t)
	ctx := asUser("alice")

	jobID := "job-42"
	title := "Backend Engineer"
	hello := "Hi, I'm interested..."
	created, err := suite.conversations.CreateOrGet(ctx, dto.CreateConversationRequest{
		OtherUserID:      "bob",
		ContextType:      models.ContextJob,
		ContextID:        &jobID,
		RelatedItemTitle: &title,
		InitialMessage:   &hello,
	})
	require.NoError(t, err)
	require.True(t, created.Created)
	require.NotNil(t, created.MessageID)

	log, err := suite.messages.List(ctx, created.ConversationID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	require.Equal(t, hello, log[0].Content)

	followUp := "Are you still hiring?"
	again, err := suite.conversations.CreateOrGet(ctx, dto.CreateConversationRequest{
		OtherUserID:    "bob",
		ContextType:    models.ContextJob,
		ContextID:      &jobID,
		InitialMessage: &followUp,
	})
	require.NoError(t, err)
	require.Equal(t, created.ConversationID, again.ConversationID)

	log, err = suite.messages.List(ctx, created.ConversationID)
	require.NoError(t, err)
	require.Len(t, log, 2)
	require.Equal(t, followUp, log[1].Content)

	summary, err := suite.conversations.Get(asUser("bob"), created.ConversationID)
	require.NoError(t, err)
	require.Equal(t, "alice", summary.OtherUser.ID)
	require.Equal(t, int64(2), summary.UnreadCount)
	require.NotNil(t, summary.RelatedItemTitle)
	require.Equal(t, title, *summary.RelatedItemTitle)
}

func TestDeleteConversationCascadesAndIsIdempotent(t *testing.T) {
	suite := newMessagingSuite(t)
	ctx := asUser("alice")
	conversationID := suite.open(t, "alice", "bob", "one")

	for _, content := range []string{"two", "three"} {
		_, err := suite.messages.Send(ctx, conversationID, dto.SendMessageRequest{Content: content})
		require.NoError(t, err)
	}

	require.NoError(t, suite.conversations.Delete(ctx, conversationID))
	require.NoError(t, suite.conversations.Delete(ctx, conversationID), "second delete is a no-op")

	log, err := suite.messages.List(ctx, conversationID)
	require.NoError(t, err)
	require.Empty(t, log)

	_, found, err := suite.conversations.FindExisting(ctx, "alice", "bob")
	require.NoError(t, err)
	require.False(t, found)

	var messages int64
	require.NoError(t, suite.db.Model(&models.Message{}).Count(&messages).Error)
	require.Zero(t, messages)
}

func TestDeleteByOutsiderIsNoop(t *testing.T) {
	suite := newMessagingSuite(t)
	conversationID := suite.open(t, "alice", "bob", "hi")

	require.NoError(t, suite.conversations.Delete(asUser("mallory"), conversationID))

	_, found, err := suite.conversations.FindExisting(asUser("alice"), "alice", "bob")
	require.NoError(t, err)
	require.True(t, found)
}

func TestConversationOperationsRequireIdentity(t *testing.T) {
	suite := newMessagingSuite(t)

	_, err := suite.conversations.CreateOrGet(t.Context(), dto.CreateConversationRequest{OtherUserID: "bob"})
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = suite.conversations.List(t.Context())
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCreateOrGetRejectsSelfConversation(t *testing.T) {
	suite := newMessagingSuite(t)

	_, err := suite.conversations.CreateOrGet(asUser("alice"), dto.CreateConversationRequest{OtherUserID: "alice"})
	require.ErrorIs(t, err, ErrSelfConversation)
}

func TestSetBlockedOnlyBlockerMayUnblock(t *testing.T) {
	suite := newMessagingSuite(t)
	conversationID := suite.open(t, "alice", "bob", "")

	summary, err := suite.conversations.SetBlocked(asUser("alice"), conversationID, true)
	require.NoError(t, err)
	require.True(t, summary.IsBlocked)

	_, err = suite.messages.Send(asUser("bob"), conversationID, dto.SendMessageRequest{Content: "let me in"})
	require.ErrorIs(t, err, ErrConversationBlocked)

	_, err = suite.conversations.SetBlocked(asUser("bob"), conversationID, false)
	require.ErrorIs(t, err, ErrNotBlocker)

	_, err = suite.conversations.SetBlocked(asUser("mallory"), conversationID, false)
	require.ErrorIs(t, err, ErrConversationNotFound)

	summary, err = suite.conversations.SetBlocked(asUser("alice"), conversationID, false)
	require.NoError(t, err)
	require.False(t, summary.IsBlocked)
}

func TestListShowsLastMessageAndUnreadCount(t *testing.T) {
	suite := newMessagingSuite(t)
	first := suite.open(t, "alice", "bob", "hello bob")
	second := suite.open(t, "carol", "alice", "hello alice")

	summaries, err := suite.conversations.List(asUser("alice"))
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, second, summaries[0].ID)
	require.Equal(t, int64(1), summaries[0].UnreadCount)
	require.Equal(t, first, summaries[1].ID)
	require.Zero(t, summaries[1].UnreadCount)
	require.NotNil(t, summaries[1].LastMessage)
	require.Equal(t, "hello bob", summaries[1].LastMessage.Content)
}

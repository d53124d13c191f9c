package assignment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportcore/internal/counter"
	"supportcore/internal/database"
	"supportcore/internal/models"
)

type fakeConversations struct {
	conversations map[int64]*models.Conversation
	messages      map[int64][]models.Message
	getErr        error
	assignCalls   int
	loseRace      bool
}

func (f *fakeConversations) GetConversation(_ context.Context, id int64) (*models.Conversation, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %d: %w", id, database.ErrNotFound)
	}
	return c, nil
}

func (f *fakeConversations) ListUserMessages(_ context.Context, conversationID int64, limit int) ([]models.Message, error) {
	messages := f.messages[conversationID]
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (f *fakeConversations) AssignConversation(_ context.Context, conversationID int64, memberID, _ string) (bool, error) {
	f.assignCalls++
	if f.loseRace {
		return false, nil
	}
	c := f.conversations[conversationID]
	if c.IsAssigned() || c.IsMerged() {
		return false, nil
	}
	c.AssignedToID = &memberID
	return true, nil
}

type fakeTeam struct {
	members []models.TeamMember
}

func (f *fakeTeam) ListMailboxMembers(context.Context, int64) ([]models.TeamMember, error) {
	return f.members, nil
}

type failingCounter struct{}

func (failingCounter) Get(context.Context, string) (int64, error) {
	return 0, errors.New("redis down")
}

func (failingCounter) Increment(context.Context, string) (int64, error) {
	return 0, errors.New("redis down")
}

type recordedEvent struct {
	eventType string
	count     int
}

type fakeRecorder struct {
	events []recordedEvent
}

func (f *fakeRecorder) Record(_ context.Context, eventType string, count int, _ map[string]any) {
	f.events = append(f.events, recordedEvent{eventType, count})
}

func strPtr(s string) *string { return &s }

func member(id string, role models.MemberRole, keywords ...string) models.TeamMember {
	return models.TeamMember{ID: id, DisplayName: strPtr("Member " + id), Role: role, Keywords: pq.StringArray(keywords)}
}

func userMessage(id int64, text string) models.Message {
	return models.Message{ID: id, Role: models.RoleUser, CleanedUpText: strPtr(text)}
}

const mailboxID = int64(3)

func newTestRouter(conversations *fakeConversations, members []models.TeamMember, counters counter.Store) (*Router, *fakeRecorder) {
	recorder := &fakeRecorder{}
	router := NewRouter(conversations, &fakeTeam{members: members}, counters, "auto-assign-message-queue", recorder, zerolog.Nop())
	router.randIntn = func(int) int { return 0 }
	return router, recorder
}

func openConversation(id int64, subject string) *models.Conversation {
	return &models.Conversation{ID: id, MailboxID: mailboxID, Subject: strPtr(subject), Status: models.StatusOpen}
}

func TestCounterKey(t *testing.T) {
	router, _ := newTestRouter(&fakeConversations{}, nil, counter.NewMemoryStore())
	assert.Equal(t, "auto-assign-message-queue:3", router.CounterKey(3))
}

func TestHandleHumanSupportRequested_RoundRobinFromCounter(t *testing.T) {
	conversations := &fakeConversations{
		conversations: map[int64]*models.Conversation{1: openConversation(1, "Question")},
		messages:      map[int64][]models.Message{1: {userMessage(10, "hello there")}},
	}
	members := []models.TeamMember{member("A", models.MemberCore), member("B", models.MemberCore), member("C", models.MemberCore)}
	counters := counter.NewMemoryStore()
	counters.Set("auto-assign-message-queue:3", 1)

	router, recorder := newTestRouter(conversations, members, counters)
	result, err := router.HandleHumanSupportRequested(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeApplied, result.Status)
	assert.Equal(t, "C", result.AssigneeID)
	assert.Equal(t, models.MemberCore, result.AssigneeRole)
	assert.Equal(t, MethodRoundRobin, result.Method)
	assert.Equal(t, "Assigned conversation 1 to Member C (core)", result.Message)

	value, err := counters.Get(context.Background(), "auto-assign-message-queue:3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), value)
	assert.Equal(t, []recordedEvent{{"assignment", 1}}, recorder.events)
}

func TestHandleHumanSupportRequested_FairRotation(t *testing.T) {
	members := []models.TeamMember{member("A", models.MemberCore), member("B", models.MemberCore), member("C", models.MemberCore)}
	conversations := &fakeConversations{conversations: map[int64]*models.Conversation{}, messages: map[int64][]models.Message{}}
	for id := int64(1); id <= 6; id++ {
		conversations.conversations[id] = openConversation(id, "Order status")
	}
	router, _ := newTestRouter(conversations, members, counter.NewMemoryStore())

	var assignees []string
	for id := int64(1); id <= 6; id++ {
		result, err := router.HandleHumanSupportRequested(context.Background(), id)
		require.NoError(t, err)
		assignees = append(assignees, result.AssigneeID)
	}

	assert.Equal(t, []string{"B", "C", "A", "B", "C", "A"}, assignees)
}

func TestHandleHumanSupportRequested_Idempotent(t *testing.T) {
	conversations := &fakeConversations{
		conversations: map[int64]*models.Conversation{1: openConversation(1, "Question")},
	}
	members := []models.TeamMember{member("A", models.MemberCore), member("B", models.MemberCore)}
	counters := counter.NewMemoryStore()
	router, _ := newTestRouter(conversations, members, counters)

	first, err := router.HandleHumanSupportRequested(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeApplied, first.Status)

	second, err := router.HandleHumanSupportRequested(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSkipped, second.Status)
	assert.Equal(t, MsgAlreadyAssigned, second.Message)

	assert.Equal(t, first.AssigneeID, *conversations.conversations[1].AssignedToID)
	value, _ := counters.Get(context.Background(), router.CounterKey(mailboxID))
	assert.Equal(t, int64(1), value)
	assert.Equal(t, 1, conversations.assignCalls)
}

func TestHandleHumanSupportRequested_KeywordPrecedence(t *testing.T) {
	conversations := &fakeConversations{
		conversations: map[int64]*models.Conversation{1: openConversation(1, "Order #991")},
		messages:      map[int64][]models.Message{1: {userMessage(10, "I need a REFUND please")}},
	}
	members := []models.TeamMember{
		member("A", models.MemberCore),
		member("K", models.MemberNonCore, "refund"),
		member("X", models.MemberNonCore, "shipping"),
	}
	counters := counter.NewMemoryStore()
	router, recorder := newTestRouter(conversations, members, counters)

	result, err := router.HandleHumanSupportRequested(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "K", result.AssigneeID)
	assert.Equal(t, models.MemberNonCore, result.AssigneeRole)
	assert.Equal(t, MethodKeyword, result.Method)

	value, _ := counters.Get(context.Background(), router.CounterKey(mailboxID))
	assert.Equal(t, int64(0), value, "keyword routing must not advance the rotation")
	assert.Equal(t, []recordedEvent{{"assignment", 1}, {"keyword_assignment", 1}}, recorder.events)
}

func TestHandleHumanSupportRequested_RandomAmongKeywordMatches(t *testing.T) {
	conversations := &fakeConversations{
		conversations: map[int64]*models.Conversation{1: openConversation(1, "Refund for a late delivery")},
	}
	members := []models.TeamMember{
		member("K1", models.MemberNonCore, "refund"),
		member("K2", models.MemberNonCore, "delivery"),
	}
	router, _ := newTestRouter(conversations, members, counter.NewMemoryStore())

	var drawnFrom int
	router.randIntn = func(n int) int {
		drawnFrom = n
		return n - 1
	}

	result, err := router.HandleHumanSupportRequested(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, drawnFrom)
	assert.Equal(t, "K2", result.AssigneeID)
}

func TestHandleHumanSupportRequested_Skips(t *testing.T) {
	assignedTo := "someone"
	mergedInto := int64(99)

	tests := []struct {
		name         string
		conversation *models.Conversation
		members      []models.TeamMember
		wantMessage  string
	}{
		{
			name:         "already assigned to a member",
			conversation: &models.Conversation{ID: 1, MailboxID: mailboxID, AssignedToID: &assignedTo},
			members:      []models.TeamMember{member("A", models.MemberCore)},
			wantMessage:  MsgAlreadyAssigned,
		},
		{
			name:         "already assigned to the AI",
			conversation: &models.Conversation{ID: 1, MailboxID: mailboxID, AssignedToAI: true},
			members:      []models.TeamMember{member("A", models.MemberCore)},
			wantMessage:  MsgAlreadyAssigned,
		},
		{
			name:         "merged",
			conversation: &models.Conversation{ID: 1, MailboxID: mailboxID, MergedIntoID: &mergedInto},
			members:      []models.TeamMember{member("A", models.MemberCore)},
			wantMessage:  MsgAlreadyMerged,
		},
		{
			name:         "only afk members",
			conversation: openConversation(1, "Help"),
			members:      []models.TeamMember{member("A", models.MemberAFK, "help")},
			wantMessage:  MsgNoActiveMembers,
		},
		{
			name:         "non-core without a keyword match and no core",
			conversation: openConversation(1, "Help"),
			members:      []models.TeamMember{member("N", models.MemberNonCore, "billing")},
			wantMessage:  MsgNoSuitable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conversations := &fakeConversations{conversations: map[int64]*models.Conversation{1: tt.conversation}}
			counters := counter.NewMemoryStore()
			router, recorder := newTestRouter(conversations, tt.members, counters)

			result, err := router.HandleHumanSupportRequested(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, models.OutcomeSkipped, result.Status)
			assert.Equal(t, tt.wantMessage, result.Message)
			assert.Zero(t, conversations.assignCalls)
			assert.Empty(t, recorder.events)

			value, _ := counters.Get(context.Background(), router.CounterKey(mailboxID))
			assert.Equal(t, int64(0), value)
		})
	}
}

func TestHandleHumanSupportRequested_NotFound(t *testing.T) {
	router, _ := newTestRouter(&fakeConversations{conversations: map[int64]*models.Conversation{}}, nil, counter.NewMemoryStore())

	result, err := router.HandleHumanSupportRequested(context.Background(), 404)
	require.NoError(t, err)
	assert.Equal(t, MsgNotFound, result.Message)
}

func TestHandleHumanSupportRequested_StoreErrorPropagates(t *testing.T) {
	conversations := &fakeConversations{getErr: errors.New("connection refused")}
	router, _ := newTestRouter(conversations, nil, counter.NewMemoryStore())

	result, err := router.HandleHumanSupportRequested(context.Background(), 1)
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestHandleHumanSupportRequested_CounterFailureDoesNotBlock(t *testing.T) {
	conversations := &fakeConversations{
		conversations: map[int64]*models.Conversation{1: openConversation(1, "Question")},
	}
	members := []models.TeamMember{member("A", models.MemberCore), member("B", models.MemberCore), member("C", models.MemberCore)}
	router, _ := newTestRouter(conversations, members, failingCounter{})

	result, err := router.HandleHumanSupportRequested(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, result.Status)
	assert.Equal(t, "B", result.AssigneeID)
}

func TestHandleHumanSupportRequested_LostRace(t *testing.T) {
	conversations := &fakeConversations{
		conversations: map[int64]*models.Conversation{1: openConversation(1, "Question")},
		loseRace:      true,
	}
	router, recorder := newTestRouter(conversations, []models.TeamMember{member("A", models.MemberCore)}, counter.NewMemoryStore())

	result, err := router.HandleHumanSupportRequested(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSkipped, result.Status)
	assert.Equal(t, MsgAlreadyAssigned, result.Message)
	assert.Empty(t, recorder.events)
}

func TestRotationIndex(t *testing.T) {
	tests := []struct {
		value int64
		n     int
		want  int
	}{
		{1, 3, 1},
		{2, 3, 2},
		{3, 3, 0},
		{7, 1, 0},
		{-1, 3, 2},
		{5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d mod %d", tt.value, tt.n), func(t *testing.T) {
			assert.Equal(t, tt.want, RotationIndex(tt.value, tt.n))
		})
	}
}

func TestConversationContent(t *testing.T) {
	body := "<p>Where is my <b>order</b>?</p>"
	messages := []models.Message{
		userMessage(1, "First message"),
		{ID: 2, Role: models.RoleStaff, CleanedUpText: strPtr("staff reply")},
		{ID: 3, Role: models.RoleUser, Body: &body},
	}

	content := ConversationContent(openConversation(1, "Subject line"), messages)
	assert.Equal(t, "Subject line First message Where is my order?", content)
}

func TestConversationContent_HTMLKeywordSurvives(t *testing.T) {
	body := "<p>price is < 5 dollars, I want a REFUND<BR>Order 12</p>"
	messages := []models.Message{{ID: 1, Role: models.RoleUser, Body: &body}}

	content := ConversationContent(&models.Conversation{}, messages)
	assert.Equal(t, "price is < 5 dollars, I want a REFUND\nOrder 12", content)

	matches := KeywordMatches([]models.TeamMember{member("refunds", models.MemberNonCore, "refund")}, content)
	require.Len(t, matches, 1)
	assert.Equal(t, "refunds", matches[0].ID)
}

func TestConversationContent_Truncated(t *testing.T) {
	long := make([]rune, MaxContentRunes+100)
	for i := range long {
		long[i] = 'x'
	}
	content := ConversationContent(&models.Conversation{}, []models.Message{userMessage(1, string(long))})
	assert.Len(t, []rune(content), MaxContentRunes)
}

func TestKeywordMatches(t *testing.T) {
	members := []models.TeamMember{
		member("core", models.MemberCore, "refund"),
		member("empty", models.MemberNonCore),
		member("blank", models.MemberNonCore, "  "),
		member("de", models.MemberNonCore, "Rückgabe"),
		member("multi", models.MemberNonCore, "invoice", "refund"),
	}

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"core members never match", "refund please", []string{"multi"}},
		{"case-insensitive unicode", "ÜBER DIE RÜCKGABE", []string{"de"}},
		{"no match", "hello", nil},
		{"blank keyword does not match everything", " ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, m := range KeywordMatches(members, tt.content) {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestCoreMembers(t *testing.T) {
	members := []models.TeamMember{
		member("A", models.MemberCore),
		member("N", models.MemberNonCore),
		member("Z", models.MemberAFK),
		member("B", models.MemberCore),
	}
	core := CoreMembers(members)
	require.Len(t, core, 2)
	assert.Equal(t, "A", core[0].ID)
	assert.Equal(t, "B", core[1].ID)
}

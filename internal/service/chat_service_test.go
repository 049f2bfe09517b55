package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gemchat-go/internal/model"
	"gemchat-go/internal/repository"
	"gemchat-go/pkg/gemini"
	"gemchat-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeConvRepo 是 ConversationRepository 的内存实现。
type fakeConvRepo struct {
	conversations map[string]*model.Conversation
	created       []*model.Conversation
	createErr     error
	touched       []string
	deleted       []string
	renamed       map[string]string
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		conversations: make(map[string]*model.Conversation),
		renamed:       make(map[string]string),
	}
}

func (f *fakeConvRepo) ListByUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	var out []model.Conversation
	for _, c := range f.conversations {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConvRepo) FindByID(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	c, ok := f.conversations[conversationID]
	if !ok || c.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (f *fakeConvRepo) Create(ctx context.Context, conversation *model.Conversation) error {
	if f.createErr != nil {
		return f.createErr
	}
	conversation.ID = fmt.Sprintf("conv-%d", len(f.created)+1)
	f.created = append(f.created, conversation)
	f.conversations[conversation.ID] = conversation
	return nil
}

func (f *fakeConvRepo) Rename(ctx context.Context, conversationID, userID, title string) error {
	c, ok := f.conversations[conversationID]
	if !ok || c.UserID != userID {
		return nil // 零行匹配，静默无操作
	}
	c.Title = title
	f.renamed[conversationID] = title
	return nil
}

func (f *fakeConvRepo) Delete(ctx context.Context, conversationID, userID string) error {
	c, ok := f.conversations[conversationID]
	if !ok || c.UserID != userID {
		return nil
	}
	delete(f.conversations, conversationID)
	f.deleted = append(f.deleted, c.ID)
	return nil
}

func (f *fakeConvRepo) Touch(ctx context.Context, conversationID string) error {
	f.touched = append(f.touched, conversationID)
	return nil
}

// fakeMsgRepo 是 MessageRepository 的内存实现。
type fakeMsgRepo struct {
	created   []*model.Message
	createErr error
	turns     []model.ChatTurn
	turnCalls int
}

func (f *fakeMsgRepo) Create(ctx context.Context, message *model.Message) error {
	if f.createErr != nil {
		return f.createErr
	}
	message.ID = fmt.Sprintf("msg-%d", len(f.created)+1)
	f.created = append(f.created, message)
	return nil
}

func (f *fakeMsgRepo) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	var out []model.Message
	for _, m := range f.created {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMsgRepo) RecentTurns(ctx context.Context, conversationID string) ([]model.ChatTurn, error) {
	f.turnCalls++
	return f.turns, nil
}

// capturingLLM 记录最近一次调用的入参并返回固定结果。
type capturingLLM struct {
	result  gemini.Result
	prompt  string
	history []gemini.Turn
	image   string
	calls   int
}

func (c *capturingLLM) Converse(ctx context.Context, prompt string, history []gemini.Turn, imageData string) gemini.Result {
	c.calls++
	c.prompt = prompt
	c.history = history
	c.image = imageData
	return c.result
}

// fakeImageSvc 返回固定的图片解析结果。
type fakeImageSvc struct {
	result ImageResult
}

func (f *fakeImageSvc) Resolve(ctx context.Context, prompt string) ImageResult {
	return f.result
}

// recordingProducer 记录投递过的索引任务。
type recordingProducer struct {
	produced []tasks.MessageIndexTask
	err      error
}

func (p *recordingProducer) ProduceIndexTask(task tasks.MessageIndexTask) error {
	if p.err != nil {
		return p.err
	}
	p.produced = append(p.produced, task)
	return nil
}

func newChatServiceForTest(convRepo *fakeConvRepo, msgRepo repository.MessageRepository, llm gemini.Client) ChatService {
	return NewChatService(convRepo, msgRepo, llm, &fakeImageSvc{}, nil, nil)
}

func TestSynthesizeTitle(t *testing.T) {
	assert.Equal(t, "hello", synthesizeTitle("hello"))

	exactly50 := strings.Repeat("a", 50)
	assert.Equal(t, exactly50, synthesizeTitle(exactly50))

	long := strings.Repeat("a", 60)
	got := synthesizeTitle(long)
	assert.Equal(t, strings.Repeat("a", 50)+"...", got)

	// 按符文截断，多字节字符不会被劈开
	cjk := strings.Repeat("标", 60)
	assert.Equal(t, strings.Repeat("标", 50)+"...", synthesizeTitle(cjk))
}

func TestSendMessageCreatesConversationOnSentinel(t *testing.T) {
	convRepo := newFakeConvRepo()
	msgRepo := &fakeMsgRepo{}
	llm := &capturingLLM{result: gemini.Result{Outcome: gemini.OutcomeOK, Type: gemini.TypeText, Content: "hi there"}}
	svc := newChatServiceForTest(convRepo, msgRepo, llm)

	result, err := svc.SendMessage(context.Background(), "user-1", SendMessageInput{
		Message:        "hello world",
		ConversationID: NewConversationSentinel,
	})
	require.NoError(t, err)

	require.Len(t, convRepo.created, 1)
	assert.Equal(t, "hello world", convRepo.created[0].Title)
	assert.Equal(t, "user-1", convRepo.created[0].UserID)
	assert.Equal(t, convRepo.created[0].ID, result.ConversationID)
	assert.Equal(t, "hi there", result.Content)
	assert.Equal(t, model.MessageTypeText, result.MessageType)
}

func TestSendMessageEchoesExistingConversationID(t *testing.T) {
	convRepo := newFakeConvRepo()
	convRepo.conversations["conv-9"] = &model.Conversation{ID: "conv-9", UserID: "user-1"}
	msgRepo := &fakeMsgRepo{}
	llm := &capturingLLM{result: gemini.Result{Outcome: gemini.OutcomeOK, Type: gemini.TypeText, Content: "ok"}}
	svc := newChatServiceForTest(convRepo, msgRepo, llm)

	result, err := svc.SendMessage(context.Background(), "user-1", SendMessageInput{
		Message:        "hi",
		ConversationID: "conv-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "conv-9", result.ConversationID)
	assert.Empty(t, convRepo.created)
	assert.Equal(t, []string{"conv-9"}, convRepo.touched)
}

func TestSendMessageRejectsForeignConversation(t *testing.T) {
	convRepo := newFakeConvRepo()
	convRepo.conversations["conv-9"] = &model.Conversation{ID: "conv-9", UserID: "someone-else"}
	svc := newChatServiceForTest(convRepo, &fakeMsgRepo{}, &capturingLLM{})

	_, err := svc.SendMessage(context.Background(), "user-1", SendMessageInput{
		Message:        "hi",
		ConversationID: "conv-9",
	})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestSendMessageRequiresAuthentication(t *testing.T) {
	svc := newChatServiceForTest(newFakeConvRepo(), &fakeMsgRepo{}, &capturingLLM{})

	_, err := svc.SendMessage(context.Background(), "", SendMessageInput{
		Message:        "hi",
		ConversationID: NewConversationSentinel,
	})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSendMessageQuotaExceededBecomesApologyContent(t *testing.T) {
	convRepo := newFakeConvRepo()
	convRepo.conversations["conv-1"] = &model.Conversation{ID: "conv-1", UserID: "user-1"}
	msgRepo := &fakeMsgRepo{}
	llm := &capturingLLM{result: gemini.Result{Outcome: gemini.OutcomeQuotaExceeded, Err: "gemini api returned 429"}}
	svc := newChatServiceForTest(convRepo, msgRepo, llm)

	result, err := svc.SendMessage(context.Background(), "user-1", SendMessageInput{
		Message:        "hi",
		ConversationID: "conv-1",
	})
	require.NoError(t, err)
	assert.Equal(t, quotaExceededContent, result.Content)
	assert.Equal(t, model.MessageTypeText, result.MessageType)
	assert.Nil(t, result.ImageURL)

	// 用户回合与助手回合都已落库，助手回合持久化的是道歉文案
	require.Len(t, msgRepo.created, 2)
	assert.Equal(t, model.RoleUser, msgRepo.created[0].Role)
	assert.Equal(t, model.RoleAssistant, msgRepo.created[1].Role)
	assert.Equal(t, quotaExceededContent, msgRepo.created[1].Content)
}

func TestSendMessageProviderAndTransportContent(t *testing.T) {
	cases := []struct {
		name    string
		outcome gemini.Outcome
		want    string
	}{
		{"provider error", gemini.OutcomeProviderError, processingErrorContent},
		{"transport error", gemini.OutcomeTransportError, serviceIssueContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			convRepo := newFakeConvRepo()
			convRepo.conversations["conv-1"] = &model.Conversation{ID: "conv-1", UserID: "user-1"}
			llm := &capturingLLM{result: gemini.Result{Outcome: tc.outcome, Err: "boom"}}
			svc := newChatServiceForTest(convRepo, &fakeMsgRepo{}, llm)

			result, err := svc.SendMessage(context.Background(), "user-1", SendMessageInput{
				Message:        "hi",
				ConversationID: "conv-1",
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.Content)
		})
	}
}

func TestSendMessageImageGenerationTurn(t *testing.T) {
	convRepo := newFakeConvRepo()
	convRepo.conversations["conv-1"] = &model.Conversation{ID: "conv-1", UserID: "user-1"}
	msgRepo := &fakeMsgRepo{}
	llm := &capturingLLM{result: gemini.Result{
		Outcome:     gemini.OutcomeOK,
		Type:        gemini.TypeImageGeneration,
		ImagePrompt: "a detailed sunset over snowy mountains",
	}}
	imageSvc := &fakeImageSvc{result: ImageResult{
		ImageURL:    "https://picsum.photos/seed/42/800/600",
		Description: "A vivid sunset.",
		Source:      ImageSourceAIDescribedPlaceholder,
	}}
	svc := NewChatService(convRepo, msgRepo, llm, imageSvc, nil, nil)

	result, err := svc.SendMessage(context.Background(), "user-1", SendMessageInput{
		Message:        "draw me a sunset",
		ConversationID: "conv-1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.MessageTypeImage, result.MessageType)
	require.NotNil(t, result.ImageURL)
	assert.Equal(t, "https://picsum.photos/seed/42/800/600", *result.ImageURL)
	assert.Contains(t, result.Content, "a detailed sunset over snowy mountains")
	assert.Contains(t, result.Content, "A vivid sunset.")

	// 助手回合以图片类型落库并携带 URL
	require.Len(t, msgRepo.created, 2)
	assert.Equal(t, model.MessageTypeImage, msgRepo.created[1].MessageType)
	require.NotNil(t, msgRepo.created[1].ImageURL)
}

func TestSendMessagePersistFailureIsNotFatal(t *testing.T) {
	convRepo := newFakeConvRepo()
	convRepo.conversations["conv-1"] = &model.Conversation{ID: "conv-1", UserID: "user-1"}
	msgRepo := &fakeMsgRepo{createErr: errors.New("mysql down")}
	llm := &capturingLLM{result: gemini.Result{Outcome: gemini.OutcomeOK, Type: gemini.TypeText, Content: "still here"}}
	svc := newChatServiceForTest(convRepo, msgRepo, llm)

	result, err := svc.SendMessage(context.Background(), "user-1", SendMessageInput{
		Message:        "hi",
		ConversationID: "conv-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "still here", result.Content)
}

func TestSendMessageRebuildsHistoryFromStore(t *testing.T) {
	convRepo := newFakeConvRepo()
	convRepo.conversations["conv-1"] = &model.Conversation{ID: "conv-1", UserID: "user-1"}
	msgRepo := &fakeMsgRepo{turns: []model.ChatTurn{
		{Role: model.RoleUser, Content: "earlier question"},
		{Role: model.RoleAssistant, Content: "earlier answer"},
	}}
	llm := &capturingLLM{result: gemini.Result{Outcome: gemini.OutcomeOK, Type: gemini.TypeText, Content: "ok"}}
	svc := newChatServiceForTest(convRepo, msgRepo, llm)

	_, err := svc.SendMessage(context.Background(), "user-1", SendMessageInput{
		Message:        "follow-up",
		ConversationID: "conv-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, msgRepo.turnCalls)
	require.Len(t, llm.history, 2)
	assert.Equal(t, "earlier question", llm.history[0].Content)
}

func TestSendMessageCallerHistoryWins(t *testing.T) {
	convRepo := newFakeConvRepo()
	convRepo.conversations["conv-1"] = &model.Conversation{ID: "conv-1", UserID: "user-1"}
	msgRepo := &fakeMsgRepo{turns: []model.ChatTurn{{Role: model.RoleUser, Content: "stored"}}}
	llm := &capturingLLM{result: gemini.Result{Outcome: gemini.OutcomeOK, Type: gemini.TypeText, Content: "ok"}}
	svc := newChatServiceForTest(convRepo, msgRepo, llm)

	_, err := svc.SendMessage(context.Background(), "user-1", SendMessageInput{
		Message:        "hi",
		ConversationID: "conv-1",
		History:        []model.ChatTurn{{Role: model.RoleUser, Content: "from caller"}},
	})
	require.NoError(t, err)
	assert.Zero(t, msgRepo.turnCalls)
	require.Len(t, llm.history, 1)
	assert.Equal(t, "from caller", llm.history[0].Content)
}

func TestSendMessageProducesIndexTasks(t *testing.T) {
	convRepo := newFakeConvRepo()
	convRepo.conversations["conv-1"] = &model.Conversation{ID: "conv-1", UserID: "user-1"}
	msgRepo := &fakeMsgRepo{}
	llm := &capturingLLM{result: gemini.Result{Outcome: gemini.OutcomeOK, Type: gemini.TypeText, Content: "answer"}}
	producer := &recordingProducer{}
	svc := NewChatService(convRepo, msgRepo, llm, &fakeImageSvc{}, nil, producer)

	_, err := svc.SendMessage(context.Background(), "user-1", SendMessageInput{
		Message:        "question",
		ConversationID: "conv-1",
	})
	require.NoError(t, err)

	require.Len(t, producer.produced, 2)
	assert.Equal(t, model.RoleUser, producer.produced[0].Role)
	assert.Equal(t, model.RoleAssistant, producer.produced[1].Role)
	assert.Equal(t, "user-1", producer.produced[0].UserID)
	assert.Equal(t, "conv-1", producer.produced[0].ConversationID)
}

func TestSendMessageProducerFailureIsNotFatal(t *testing.T) {
	convRepo := newFakeConvRepo()
	convRepo.conversations["conv-1"] = &model.Conversation{ID: "conv-1", UserID: "user-1"}
	llm := &capturingLLM{result: gemini.Result{Outcome: gemini.OutcomeOK, Type: gemini.TypeText, Content: "ok"}}
	producer := &recordingProducer{err: errors.New("kafka unreachable")}
	svc := NewChatService(convRepo, &fakeMsgRepo{}, llm, &fakeImageSvc{}, nil, producer)

	_, err := svc.SendMessage(context.Background(), "user-1", SendMessageInput{
		Message:        "hi",
		ConversationID: "conv-1",
	})
	assert.NoError(t, err)
}

func TestSendMessageEmptyModelTextFallsBackToDefault(t *testing.T) {
	convRepo := newFakeConvRepo()
	convRepo.conversations["conv-1"] = &model.Conversation{ID: "conv-1", UserID: "user-1"}
	llm := &capturingLLM{result: gemini.Result{Outcome: gemini.OutcomeOK, Type: gemini.TypeText, Content: ""}}
	svc := newChatServiceForTest(convRepo, &fakeMsgRepo{}, llm)

	result, err := svc.SendMessage(context.Background(), "user-1", SendMessageInput{
		Message:        "hi",
		ConversationID: "conv-1",
	})
	require.NoError(t, err)
	assert.Equal(t, defaultAssistantContent, result.Content)
}

// storingMsgRepo 的 RecentTurns 反映此前 Create 过的消息，贴近真实仓储的行为。
type storingMsgRepo struct {
	fakeMsgRepo
}

func (f *storingMsgRepo) RecentTurns(ctx context.Context, conversationID string) ([]model.ChatTurn, error) {
	f.turnCalls++
	turns := make([]model.ChatTurn, 0, len(f.created))
	for _, m := range f.created {
		if m.ConversationID == conversationID {
			turns = append(turns, model.ChatTurn{Role: m.Role, Content: m.Content})
		}
	}
	return turns, nil
}

func TestSendMessageRebuiltHistoryExcludesCurrentTurn(t *testing.T) {
	convRepo := newFakeConvRepo()
	convRepo.conversations["conv-1"] = &model.Conversation{ID: "conv-1", UserID: "user-1"}
	msgRepo := &storingMsgRepo{}
	llm := &capturingLLM{result: gemini.Result{Outcome: gemini.OutcomeOK, Type: gemini.TypeText, Content: "first answer"}}
	svc := newChatServiceForTest(convRepo, msgRepo, llm)

	// 第一个回合把两条消息写进仓储
	_, err := svc.SendMessage(context.Background(), "user-1", SendMessageInput{
		Message:        "first question",
		ConversationID: "conv-1",
	})
	require.NoError(t, err)

	// 第二个回合：重建的历史只含此前的两条，当前消息不在其中
	_, err = svc.SendMessage(context.Background(), "user-1", SendMessageInput{
		Message:        "what is the weather",
		ConversationID: "conv-1",
	})
	require.NoError(t, err)

	require.Len(t, llm.history, 2)
	assert.Equal(t, "first question", llm.history[0].Content)
	assert.Equal(t, "first answer", llm.history[1].Content)
	for _, turn := range llm.history {
		assert.NotEqual(t, "what is the weather", turn.Content)
	}
}

package policy

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/map-review/pkg/anthropic"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg_1",
		Model:      "claude-haiku-4-5-20251001",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
	}
}

func newTestClassifier(mc anthropic.Client) *Classifier {
	return NewClassifier(mc, Config{})
}

func TestClassify_EmptyText(t *testing.T) {
	c := newTestClassifier(new(mockAnthropicClient))

	_, fail := c.Classify(context.Background(), "   \n\t ")
	require.NotNil(t, fail)
	assert.Equal(t, "No policy text to analyze.", fail.Message)
}

func TestClassify_NotConfigured(t *testing.T) {
	c := NewClassifier(nil, Config{})

	_, fail := c.Classify(context.Background(), "Some policy text.")
	require.NotNil(t, fail)
	assert.Equal(t, "Policy text was extracted, but analysis is not configured (missing MAPREVIEW_ANTHROPIC_KEY).", fail.Message)
}

func TestClassify_Success(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{"appliesToAllRetailers":true,"segmentDescription":null,"consequencesSpecific":true,"consequencesSummary":"First violation: warning. Second: 90-day cutoff."}`), nil)

	c := newTestClassifier(mc)
	analysis, fail := c.Classify(context.Background(), "This policy applies to all authorized retailers.")
	require.Nil(t, fail)
	require.NotNil(t, analysis)
	assert.True(t, analysis.AppliesToAllRetailers)
	assert.Nil(t, analysis.SegmentDescription)
	assert.True(t, analysis.ConsequencesSpecific)
	require.NotNil(t, analysis.ConsequencesSummary)
	assert.Equal(t, "First violation: warning. Second: 90-day cutoff.", *analysis.ConsequencesSummary)
	mc.AssertExpectations(t)
}

func TestClassify_SendsCachedSystemPromptAndBudget(t *testing.T) {
	mc := new(mockAnthropicClient)
	var got anthropic.MessageRequest
	mc.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Run(func(args mock.Arguments) {
			got = args.Get(1).(anthropic.MessageRequest)
		}).
		Return(textResponse(`{}`), nil)

	c := newTestClassifier(mc)
	_, fail := c.Classify(context.Background(), "Policy text.")
	require.Nil(t, fail)

	assert.Equal(t, "claude-haiku-4-5-20251001", got.Model)
	assert.Equal(t, int64(500), got.MaxTokens)
	require.Len(t, got.System, 1)
	assert.Contains(t, got.System[0].Text, "MAP (Minimum Advertised Price)")
	require.NotNil(t, got.System[0].CacheControl)
	require.Len(t, got.Messages, 1)
	assert.Contains(t, got.Messages[0].Content, "Policy text.")
}

func TestClassify_TruncatesLongText(t *testing.T) {
	mc := new(mockAnthropicClient)
	var got anthropic.MessageRequest
	mc.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Run(func(args mock.Arguments) {
			got = args.Get(1).(anthropic.MessageRequest)
		}).
		Return(textResponse(`{}`), nil)

	long := make([]byte, defaultMaxChars+5000)
	for i := range long {
		long[i] = 'a'
	}

	c := newTestClassifier(mc)
	_, fail := c.Classify(context.Background(), string(long))
	require.Nil(t, fail)
	assert.Less(t, len(got.Messages[0].Content), defaultMaxChars+len(userPromptTemplate))
}

func TestClassify_TruncationKeepsValidUTF8(t *testing.T) {
	mc := new(mockAnthropicClient)
	var got anthropic.MessageRequest
	mc.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Run(func(args mock.Arguments) {
			got = args.Get(1).(anthropic.MessageRequest)
		}).
		Return(textResponse(`{}`), nil)

	// The cap lands in the middle of a 3-byte rune.
	text := strings.Repeat("a", 9) + strings.Repeat("€", 4)
	c := NewClassifier(mc, Config{MaxChars: 10})

	_, fail := c.Classify(context.Background(), text)
	require.Nil(t, fail)
	assert.True(t, utf8.ValidString(got.Messages[0].Content))
	assert.NotContains(t, got.Messages[0].Content, "�")
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "abc", truncateText("abc", 10))
	assert.Equal(t, "ab", truncateText("abcd", 2))
	// Never cuts inside a multi-byte rune.
	assert.Equal(t, "a", truncateText("a€b", 3))
	assert.Equal(t, "a€", truncateText("a€b", 4))
}

func TestClassify_MarkdownFencedReply(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse("```json\n{\"appliesToAllRetailers\":false,\"segmentDescription\":\"big box retailers only\"}\n```"), nil)

	c := newTestClassifier(mc)
	analysis, fail := c.Classify(context.Background(), "Policy text.")
	require.Nil(t, fail)
	assert.False(t, analysis.AppliesToAllRetailers)
	require.NotNil(t, analysis.SegmentDescription)
	assert.Equal(t, "big box retailers only", *analysis.SegmentDescription)
}

func TestClassify_WrongTypesCoerced(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{"appliesToAllRetailers":"yes","segmentDescription":42,"consequencesSpecific":1,"consequencesSummary":null}`), nil)

	c := newTestClassifier(mc)
	analysis, fail := c.Classify(context.Background(), "Policy text.")
	require.Nil(t, fail)
	assert.False(t, analysis.AppliesToAllRetailers)
	assert.Nil(t, analysis.SegmentDescription)
	assert.False(t, analysis.ConsequencesSpecific)
	assert.Nil(t, analysis.ConsequencesSummary)
}

func TestClassify_InvalidJSON(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse("I could not determine the policy scope."), nil)

	c := newTestClassifier(mc)
	_, fail := c.Classify(context.Background(), "Policy text.")
	require.NotNil(t, fail)
	assert.Contains(t, fail.Message, "Policy analysis failed: ")
}

func TestClassify_APIErrorPreservedVerbatim(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(nil, assert.AnError)

	c := newTestClassifier(mc)
	_, fail := c.Classify(context.Background(), "Policy text.")
	require.NotNil(t, fail)
	assert.Contains(t, fail.Message, "Policy analysis failed: ")
	assert.Contains(t, fail.Message, assert.AnError.Error())
}

func TestClassify_EmptyReply(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(&anthropic.MessageResponse{ID: "msg_empty"}, nil)

	c := newTestClassifier(mc)
	_, fail := c.Classify(context.Background(), "Policy text.")
	require.NotNil(t, fail)
	assert.Equal(t, "Empty response from policy analysis.", fail.Message)
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", `Here you go: {"a":1} hope that helps`, `{"a":1}`},
		{"no object", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}

package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// newTestClient serves reply for every request and records the last body.
func newTestClient(t *testing.T, status int, reply string) (*Client, *invokeRequest) {
	t.Helper()
	got := &invokeRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agent/invoke", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", APIKey: "key", RequestsPerSecond: -1})
	require.NoError(t, err)
	return c, got
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(Config{BaseURL: "http://x"})

	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSummarise_StringAnswerWithFence(t *testing.T) {
	answer := "```json\n{\"title\":\"Graphs\",\"summary\":\"Nodes and edges.\"}\n```"
	body, err := json.Marshal(map[string]string{"answer": answer})
	require.NoError(t, err)
	c, got := newTestClient(t, http.StatusOK, string(body))

	s, err := c.Summarise(context.Background(), "window text")

	require.NoError(t, err)
	assert.Equal(t, domain.ChapterSummary{Title: "Graphs", Summary: "Nodes and edges."}, s)
	assert.Equal(t, DefaultChapterAgent, got.Agent)
	assert.Equal(t, "window text", got.Params["chapter_text"])
}

func TestSummarise_ObjectOutput(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, `{"output":{"title":"T","summary":"S"}}`)

	s, err := c.Summarise(context.Background(), "x")

	require.NoError(t, err)
	assert.Equal(t, "T", s.Title)
}

func TestSummarise_Malformed(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, `{"answer":"I cannot do that"}`)

	_, err := c.Summarise(context.Background(), "x")

	assert.Equal(t, domain.ExternalMalformed, domain.ClassifyExternal(err))
}

func TestGenerateQuestion(t *testing.T) {
	c, got := newTestClient(t, http.StatusOK,
		`{"result":{"question":"Which sorts in place?","options":["A","B","C","D"],"correct_answer":"A"}}`)

	q, err := c.GenerateQuestion(context.Background(), driven.QuestionRequest{
		Topic:   "sorting",
		Context: "heapsort sorts in place",
		Type:    domain.QuestionMultipleChoice,
	})

	require.NoError(t, err)
	assert.Equal(t, "Which sorts in place?", q.Prompt)
	assert.Len(t, q.Options, 4)
	assert.Equal(t, DefaultQuestionAgent, got.Agent)
	assert.Equal(t, "sorting", got.Query)
	assert.Equal(t, "heapsort sorts in place", got.Context)
}

func TestValidateAnswer(t *testing.T) {
	c, got := newTestClient(t, http.StatusOK, `{"score":0.9,"is_correct":true,"feedback":"Nice."}`)

	grade, err := c.ValidateAnswer(context.Background(), driven.ValidationRequest{
		Question: "Q?", Answer: "A", Type: domain.QuestionShortAnswer,
	})

	require.NoError(t, err)
	assert.InDelta(t, 0.9, grade.Score, 1e-9)
	assert.True(t, grade.Correct)
	assert.Equal(t, DefaultValidatorAgent, got.Agent)
	assert.Contains(t, got.Query, "Student Answer: A")
}

func TestInvoke_QuotaOpensBackoff(t *testing.T) {
	c, _ := newTestClient(t, http.StatusTooManyRequests, `{"error":"slow down"}`)

	_, err := c.Summarise(context.Background(), "x")

	assert.Equal(t, domain.ExternalQuota, domain.ClassifyExternal(err))
	assert.False(t, c.limiter.Allow())
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, retryAfter("5"))
	assert.Equal(t, time.Duration(0), retryAfter(""))
	assert.Equal(t, time.Duration(0), retryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}

func TestUnwrapReply(t *testing.T) {
	_, err := unwrapReply(nil)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)

	s, err := unwrapReply(map[string]json.RawMessage{"score": json.RawMessage(`1`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":1}`, s)
}

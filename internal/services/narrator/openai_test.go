package narrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type OpenAITestSuite struct {
	suite.Suite
	server  *httptest.Server
	status  int
	body    string
	lastReq map[string]any
	calls   int
}

func (s *OpenAITestSuite) SetupTest() {
	s.status = http.StatusOK
	s.body = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",` +
		`"choices":[{"index":0,"message":{"role":"assistant","content":"The gate opens.\n\n\n\n\n\nAlice\nnone\nA 승리"},"finish_reason":"stop"}],` +
		`"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`
	s.lastReq = nil
	s.calls = 0

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls++
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &s.lastReq)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(s.body))
	}))
}

func (s *OpenAITestSuite) TearDownTest() {
	s.server.Close()
}

func TestOpenAITestSuite(t *testing.T) {
	suite.Run(t, new(OpenAITestSuite))
}

func (s *OpenAITestSuite) newNarrator(key string) *OpenAI {
	n, err := NewOpenAI(&OpenAIConfig{
		APIKey:  key,
		BaseURL: s.server.URL + "/",
	})
	s.Require().NoError(err)
	return n
}

func (s *OpenAITestSuite) TestNilConfig() {
	_, err := NewOpenAI(nil)
	s.Error(err)
}

func (s *OpenAITestSuite) TestNarrate() {
	n := s.newNarrator("sk-test")

	resp, err := n.Narrate(context.Background(), &Request{
		System: "You are the narrator.",
		Prompt: "Turn 1",
		History: []Message{
			{Role: RoleUser, Content: "Turn 0"},
			{Role: RoleAssistant, Content: "It begins."},
		},
	})
	s.Require().NoError(err)
	s.Contains(resp.Text, "A 승리")

	s.Require().NotNil(s.lastReq)
	s.Equal(DefaultModel, s.lastReq["model"])
	msgs, ok := s.lastReq["messages"].([]any)
	s.Require().True(ok)
	s.Len(msgs, 4)
}

func (s *OpenAITestSuite) TestMissingKeyNeverCallsAPI() {
	n := s.newNarrator("")

	_, err := n.Narrate(context.Background(), &Request{Prompt: "Turn 1"})
	s.Equal(KindMissingUserAPIKey, KindOf(err))
	s.True(IsFatal(err))
	s.Nil(s.lastReq)
}

func (s *OpenAITestSuite) TestQuotaExhausted() {
	s.status = http.StatusTooManyRequests
	s.body = `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`

	_, err := s.newNarrator("sk-test").Narrate(context.Background(), &Request{Prompt: "Turn 1"})
	s.Equal(KindQuotaExhausted, KindOf(err))
	s.True(IsFatal(err))
}

func (s *OpenAITestSuite) TestUnauthorized() {
	s.status = http.StatusUnauthorized
	s.body = `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`

	_, err := s.newNarrator("sk-bad").Narrate(context.Background(), &Request{Prompt: "Turn 1"})
	s.Equal(KindMissingUserAPIKey, KindOf(err))
}

func (s *OpenAITestSuite) TestGenericAPIError() {
	s.status = http.StatusBadRequest
	s.body = `{"error":{"message":"bad request","type":"invalid_request_error","code":null}}`

	_, err := s.newNarrator("sk-test").Narrate(context.Background(), &Request{Prompt: "Turn 1"})
	s.Equal(KindAPIError, KindOf(err))
	s.True(IsFatal(err))
}

func (s *OpenAITestSuite) TestServerErrorIsNotRetried() {
	s.status = http.StatusInternalServerError
	s.body = `{"error":{"message":"upstream failure","type":"server_error","code":null}}`

	_, err := s.newNarrator("sk-test").Narrate(context.Background(), &Request{Prompt: "Turn 1"})
	s.Equal(KindAPIError, KindOf(err))
	s.Equal(1, s.calls)
}

func (s *OpenAITestSuite) TestRateLimitIsNotRetried() {
	s.status = http.StatusTooManyRequests
	s.body = `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`

	_, err := s.newNarrator("sk-test").Narrate(context.Background(), &Request{Prompt: "Turn 1"})
	s.Error(err)
	s.Equal(1, s.calls)
}

func (s *OpenAITestSuite) TestNetworkErrorIsNotFatal() {
	n := s.newNarrator("sk-test")
	s.server.Close()

	_, err := n.Narrate(context.Background(), &Request{Prompt: "Turn 1"})
	s.Equal(KindNetwork, KindOf(err))
	s.False(IsFatal(err))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.False(t, IsFatal(errors.New("boom")))
	assert.Equal(t, "narrator: network", (&Error{Kind: KindNetwork}).Error())
}

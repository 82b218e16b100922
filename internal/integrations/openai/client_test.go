package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ask-vadym/internal/domain"
)

// ---------------------------------------------------------------------------
// chatURL helper
// ---------------------------------------------------------------------------

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_EmptyAPIKey(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "API key")
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("sk-test")
	require.NoError(t, err)
	require.Equal(t, "https://api.openai.com/v1", c.baseURL)
	require.Equal(t, defaultMaxTokens, c.maxTokens)
}

// ---------------------------------------------------------------------------
// StreamChat
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithBaseURL(srv.URL)}, opts...)
	c, err := NewClient("sk-test", opts...)
	require.NoError(t, err)
	return c
}

// sseHandler writes each payload as one SSE event followed by [DONE].
func sseHandler(t *testing.T, payloads ...string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(200)
		flusher := w.(http.Flusher)
		for _, p := range payloads {
			_, _ = io.WriteString(w, "data: "+p+"\n\n")
			flusher.Flush()
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

func drain(t *testing.T, s domain.CompletionStream) []string {
	t.Helper()
	var got []string
	for {
		fragment, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return got
		}
		require.NoError(t, err)
		got = append(got, fragment)
	}
}

func TestStreamChat_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(reqBody), `"stream":true`)
		require.Contains(t, string(reqBody), `"max_tokens":150`)
		require.Contains(t, string(reqBody), `"role":"system"`)
		require.Contains(t, string(reqBody), `"role":"user"`)

		sseHandler(t,
			`{"choices":[{"delta":{"content":"Hello"}}]}`,
			`{"choices":[{"delta":{"content":" there"}}]}`,
		)(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	s, err := c.StreamChat(context.Background(), "gpt-mock", []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "persona"},
		{Role: domain.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.Equal(t, []string{"Hello", " there"}, drain(t, s))
}

func TestStreamChat_SkipsChunksWithoutContent(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t,
		`{"choices":[{"delta":{"role":"assistant"}}]}`,
		`{"choices":[{"delta":{"content":"answer"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	))
	defer srv.Close()

	c := newTestClient(t, srv)
	s, err := c.StreamChat(context.Background(), "gpt-mock", nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.Equal(t, []string{"answer"}, drain(t, s))
}

func TestStreamChat_EOFWithoutDoneSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	s, err := c.StreamChat(context.Background(), "gpt-mock", nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.Equal(t, []string{"partial"}, drain(t, s))
}

func TestStreamChat_RecvAfterDoneKeepsReturningEOF(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, `{"choices":[{"delta":{"content":"x"}}]}`))
	defer srv.Close()

	c := newTestClient(t, srv)
	s, err := c.StreamChat(context.Background(), "gpt-mock", nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	drain(t, s)
	_, err = s.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestStreamChat_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.StreamChat(context.Background(), "gpt-mock", nil)
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 401, statusErr.StatusCode)
}

func TestStreamChat_NetworkError(t *testing.T) {
	c, err := NewClient("sk-test", WithBaseURL("http://127.0.0.1:1"),
		WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	require.NoError(t, err)

	_, err = c.StreamChat(context.Background(), "gpt-mock", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed")
}

func TestStreamChat_EmptyModel(t *testing.T) {
	c, err := NewClient("sk-test")
	require.NoError(t, err)

	_, err = c.StreamChat(context.Background(), "", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "model")
}

func TestStreamChat_MalformedChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = io.WriteString(w, "data: not-a-json\n\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	s, err := c.StreamChat(context.Background(), "gpt-mock", nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.Recv()
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode stream chunk")
}

func TestStreamChat_ErrorChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = io.WriteString(w, "data: {\"error\":{\"message\":\"model overloaded\"}}\n\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	s, err := c.StreamChat(context.Background(), "gpt-mock", nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.Recv()
	require.Error(t, err)
	require.Contains(t, err.Error(), "model overloaded")
}

func TestStreamChat_ContextCancelAbortsRecv(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		flusher.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(t, srv)
	s, err := c.StreamChat(ctx, "gpt-mock", nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	fragment, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, "first", fragment)

	cancel()
	_, err = s.Recv()
	require.Error(t, err)
}

func TestStream_RecvAfterClose(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t))
	defer srv.Close()

	c := newTestClient(t, srv)
	s, err := c.StreamChat(context.Background(), "gpt-mock", nil)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close must be a no-op")

	_, err = s.Recv()
	require.Error(t, err)
	require.Contains(t, err.Error(), "closed")
}

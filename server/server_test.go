package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sammcj/agentloop/agent"
	"github.com/sammcj/agentloop/types"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu     sync.Mutex
	reqs   []agent.Request
	chunks []agent.Chunk
	block  chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, req agent.Request) <-chan agent.Chunk {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	ch := make(chan agent.Chunk)
	go func() {
		defer close(ch)
		if f.block != nil {
			select {
			case <-f.block:
			case <-ctx.Done():
				return
			}
		}
		for _, c := range f.chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (f *fakeRunner) lastRequest() agent.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

type fakeModel struct {
	reply string
	err   error
	msgs  []types.Message
	opts  types.CompletionOptions
}

func (m *fakeModel) Complete(_ context.Context, msgs []types.Message, opts types.CompletionOptions) (string, error) {
	m.msgs = msgs
	m.opts = opts
	return m.reply, m.err
}

func newTestServer(t *testing.T, opts Options, runner Runner, model agent.Model) *httptest.Server {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s := New(opts, runner, model, logger)
	t.Cleanup(func() { s.Tracker().Close() })
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Options{}, &fakeRunner{}, &fakeModel{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]string{"status": "ok", "message": "Agent backend is running"}, body)
}

func TestChatStreamsChunks(t *testing.T) {
	runner := &fakeRunner{chunks: []agent.Chunk{
		{Kind: agent.KindProgress, Text: "Looking.\n"},
		{Kind: agent.KindTool, Text: "[TOOL] Using tool: run_bash\n"},
		{Kind: agent.KindAnswer, Text: "Done."},
	}}
	srv := newTestServer(t, Options{}, runner, &fakeModel{})

	resp := post(t, srv.URL+"/chat", `{
		"message": "list files",
		"history": [{"role": "user", "content": "hi"}, {"role": "assistant", "content": "hello"}],
		"workspace_path": "/proj"
	}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Looking.\n[TOOL] Using tool: run_bash\nDone.", string(body))

	req := runner.lastRequest()
	assert.Equal(t, "list files", req.Message)
	assert.Equal(t, "/proj", req.WorkspacePath)
	assert.Equal(t, []types.Message{
		{Role: types.RoleUser, Content: "hi"},
		{Role: types.RoleAssistant, Content: "hello"},
	}, req.History)
}

func TestChatRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, Options{}, &fakeRunner{}, &fakeModel{})

	resp := post(t, srv.URL+"/chat", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	getResp, err := http.Get(srv.URL + "/chat")
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, getResp.StatusCode)
}

func TestExplainFile(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "default instruction",
			body: `{"file_content": "package main", "file_path": "main.go"}`,
			want: "File: main.go\n```\npackage main\n```\nExplain this file",
		},
		{
			name: "custom instruction",
			body: `{"file_content": "x = 1", "file_path": "a.py", "instruction": "Find bugs"}`,
			want: "File: a.py\n```\nx = 1\n```\nFind bugs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{chunks: []agent.Chunk{{Kind: agent.KindAnswer, Text: "ok"}}}
			srv := newTestServer(t, Options{}, runner, &fakeModel{})

			resp := post(t, srv.URL+"/explain-file", tt.body)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, "ok", string(body))
			req := runner.lastRequest()
			assert.Equal(t, tt.want, req.Message)
			assert.Empty(t, req.History)
			assert.Empty(t, req.WorkspacePath)
		})
	}
}

func TestSuggest(t *testing.T) {
	model := &fakeModel{reply: "  return a + b\n"}
	srv := newTestServer(t, Options{InlineModel: "fast-model"}, &fakeRunner{}, model)

	resp := post(t, srv.URL+"/suggest", `{"code_before_cursor": "def add(a, b):\n", "language": "python"}`)

	var out SuggestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "return a + b", out.Suggestion)
	assert.Empty(t, out.Error)

	require.Len(t, model.msgs, 2)
	assert.Equal(t, agent.InlinePrompt, model.msgs[0].Content)
	assert.Equal(t, "Language: python\nCode:\ndef add(a, b):\n", model.msgs[1].Content)
	assert.Equal(t, "fast-model", model.opts.Model)
	assert.Equal(t, 150, model.opts.MaxTokens)
	require.NotNil(t, model.opts.Temperature)
	assert.InDelta(t, 0.2, *model.opts.Temperature, 1e-9)
}

func TestSuggestError(t *testing.T) {
	model := &fakeModel{err: errors.New("backend down")}
	srv := newTestServer(t, Options{}, &fakeRunner{}, model)

	resp := post(t, srv.URL+"/suggest", `{"code_before_cursor": "x", "language": "go"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out SuggestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Empty(t, out.Suggestion)
	assert.Equal(t, "backend down", out.Error)
}

func TestConcurrencyLimit(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), chunks: []agent.Chunk{{Text: "done"}}}
	srv := newTestServer(t, Options{MaxConcurrent: 1}, runner, &fakeModel{})

	first := make(chan string)
	go func() {
		resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{"message":"a"}`))
		if err != nil {
			first <- err.Error()
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		first <- string(b)
	}()

	// The first run holds the only slot until block is closed.
	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.reqs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	resp := post(t, srv.URL+"/chat", `{"message":"b"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	close(runner.block)
	assert.Equal(t, "done", <-first)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Options{}, &fakeRunner{}, &fakeModel{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "vscode-webview://abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "vscode-webview://abc", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRunTracker(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tr := NewRunTracker(time.Nanosecond, time.Hour, logger)
	defer tr.Close()

	id := tr.Track("chat")
	assert.Equal(t, 1, tr.InFlight())
	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, tr.Stuck())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "run is still in flight", hook.LastEntry().Message)

	tr.Done(id)
	assert.Zero(t, tr.InFlight())
	assert.NoError(t, tr.Close())
}

func TestShutdownManagerClosesResources(t *testing.T) {
	logger, _ := test.NewNullLogger()
	srv := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(srv, time.Second, logger)

	var order []string
	sm.Register("audit", func(context.Context) error {
		order = append(order, "audit")
		return nil
	})
	sm.Register("telemetry", func(context.Context) error {
		order = append(order, "telemetry")
		return errors.New("flush failed")
	})

	assert.False(t, sm.IsShuttingDown())
	err := sm.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry close error: flush failed")
	assert.Equal(t, []string{"audit", "telemetry"}, order)
	assert.True(t, sm.IsShuttingDown())
}

type brokenWriter struct {
	header http.Header
}

func (b *brokenWriter) Header() http.Header { return b.header }
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }
func (b *brokenWriter) WriteHeader(int) {}

func TestWriteJSONLogsWriteFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s := New(Options{}, &fakeRunner{}, &fakeModel{}, logger)
	t.Cleanup(func() { s.Tracker().Close() })

	w := &brokenWriter{header: http.Header{}}
	s.writeJSON(w, map[string]string{"status": "ok"})

	assert.Equal(t, "application/json", w.header.Get("Content-Type"))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "failed to write response", entry.Message)
	assert.EqualError(t, entry.Data[logrus.ErrorKey].(error), "connection reset")
}

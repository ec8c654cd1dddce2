package server_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/engine"
	"github.com/unicorn-commander/tts-panel/internal/server"
	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

type fakePhonemizer struct{}

func (fakePhonemizer) Phonemize(_ context.Context, text, _ string) (string, error) {
	return text, nil
}

type fakeVocabulary struct{}

func (fakeVocabulary) TokenIDs(phonemes string) ([]int64, error) {
	ids := make([]int64, 0, len(phonemes))
	for range phonemes {
		ids = append(ids, 1)
	}

	return ids, nil
}

func writeVoicesResource(t *testing.T, name string, maxTokens, styleDim int) string {
	t.Helper()

	var buf bytes.Buffer

	buf.WriteString("VOIC")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(1)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(maxTokens)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(styleDim)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(name))))
	buf.WriteString(name)

	payload := make([]float32, maxTokens*styleDim)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, payload))

	path := filepath.Join(t.TempDir(), "voices.bin")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	return path
}

type testPanel struct {
	srv    *server.Server
	hub    *server.Hub
	log    *weblog.Log
	server *httptest.Server
}

func newTestPanel(t *testing.T, executor engine.Executor) *testPanel {
	t.Helper()

	log := newTestLog(t)

	styles, err := engine.LoadStyleTable(writeVoicesResource(t, "af_test", 128, 4))
	require.NoError(t, err)

	eng := engine.New(engine.Options{
		Mode:      engine.ModeInProcess,
		Tokenizer: engine.NewTokenizer(fakePhonemizer{}, fakeVocabulary{}, log),
		Styles:    styles,
		Capability: engine.NewCapabilityCache(func(_ context.Context) core.Capability {
			return core.Capability{VoicesLoaded: 1}
		}),
		Executor:   executor,
		Profile:    core.ProfileTokensAndStyle,
		SampleRate: 24000,
	}, log)

	hub := server.NewHub(log.Buffer(), log)
	go hub.Run()

	settings := server.NewSettingsStore(filepath.Join(t.TempDir(), "settings.toml"), log)

	srv := server.New(server.Config{
		Addr:     "127.0.0.1:0",
		AudioDir: t.TempDir(),
		Mode:     engine.ModeInProcess,
	}, eng, settings, hub, log)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(hub.Close)

	return &testPanel{srv: srv, hub: hub, log: log, server: ts}
}

func defaultExecutor(_ context.Context, _ core.ModelInputs) ([]float32, error) {
	return make([]float32, 2400), nil
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, target any) {
	t.Helper()

	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func TestSynthesizeEndToEnd(t *testing.T) {
	t.Parallel()

	panel := newTestPanel(t, defaultExecutor)

	resp := postJSON(t, panel.server.URL+"/synthesize", map[string]any{
		"text":  "hello world",
		"voice": "af_test",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Success  bool   `json:"success"`
		Filename string `json:"filename"`
		AudioURL string `json:"audio_url"`
		Message  string `json:"message"`
		Metrics  struct {
			GenerationTime string `json:"generation_time"`
			AudioLength    string `json:"audio_length"`
			RTF            string `json:"rtf"`
			MethodUsed     string `json:"method_used"`
			Voice          string `json:"voice"`
			SampleRate     int    `json:"sample_rate"`
		} `json:"metrics"`
	}

	decodeBody(t, resp, &result)
	require.True(t, result.Success)
	require.True(t, strings.HasPrefix(result.Filename, "real_speech_"))
	require.True(t, strings.HasSuffix(result.Filename, ".wav"))
	require.Equal(t, "/audio/"+result.Filename, result.AudioURL)
	require.NotEmpty(t, result.Message)
	require.Equal(t, "cpu", result.Metrics.MethodUsed)
	require.Equal(t, "af_test", result.Metrics.Voice)
	require.Equal(t, 24000, result.Metrics.SampleRate)
	require.Equal(t, "0.10", result.Metrics.AudioLength)

	// The produced file is retrievable.
	audioResp, err := http.Get(panel.server.URL + result.AudioURL)
	require.NoError(t, err)

	defer audioResp.Body.Close()
	require.Equal(t, http.StatusOK, audioResp.StatusCode)
	require.Equal(t, "audio/wav", audioResp.Header.Get("Content-Type"))
}

func TestSynthesizeEmptyTextIsBadRequest(t *testing.T) {
	t.Parallel()

	panel := newTestPanel(t, defaultExecutor)

	resp := postJSON(t, panel.server.URL+"/synthesize", map[string]any{
		"text": "   ", "voice": "af_test",
	})

	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	decodeBody(t, resp, &result)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "no text")
}

func TestSynthesizeOverLengthIsBadRequest(t *testing.T) {
	t.Parallel()

	panel := newTestPanel(t, defaultExecutor)

	resp := postJSON(t, panel.server.URL+"/synthesize", map[string]any{
		"text": strings.Repeat("a", 2000), "voice": "af_test",
	})

	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSynthesizeEngineFailureIsServerError(t *testing.T) {
	t.Parallel()

	panel := newTestPanel(t, func(_ context.Context, _ core.ModelInputs) ([]float32, error) {
		return nil, context.DeadlineExceeded
	})

	resp := postJSON(t, panel.server.URL+"/synthesize", map[string]any{
		"text": "hello", "voice": "af_test",
	})

	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestAudioRejectsTraversal(t *testing.T) {
	t.Parallel()

	panel := newTestPanel(t, defaultExecutor)

	for _, name := range []string{
		"..%2f..%2fetc%2fpasswd",
		"real_speech_..test.wav",
		"other_name.wav",
		"real_speech_x.mp3",
	} {
		resp, err := http.Get(panel.server.URL + "/audio/" + name)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
}

func TestAudioUnknownFileIsNotFound(t *testing.T) {
	t.Parallel()

	panel := newTestPanel(t, defaultExecutor)

	resp, err := http.Get(panel.server.URL + "/audio/real_speech_00000000.wav")
	require.NoError(t, err)

	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	panel := newTestPanel(t, defaultExecutor)

	resp := postJSON(t, panel.server.URL+"/settings", map[string]any{
		"preferred_method": "cpu",
		"max_text_length":  50,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	getResp, err := http.Get(panel.server.URL + "/settings")
	require.NoError(t, err)

	var settings server.Settings

	decodeBody(t, getResp, &settings)
	require.Equal(t, "cpu", settings.PreferredMethod)
	require.Equal(t, 50, settings.MaxTextLength)
}

func TestSettingsUnknownKeyIsBadRequest(t *testing.T) {
	t.Parallel()

	panel := newTestPanel(t, defaultExecutor)

	resp := postJSON(t, panel.server.URL+"/settings", map[string]any{"volume": 11})

	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	panel := newTestPanel(t, defaultExecutor)

	for range 3 {
		resp := postJSON(t, panel.server.URL+"/synthesize", map[string]any{
			"text": "hello", "voice": "af_test",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Get(panel.server.URL + "/metrics")
	require.NoError(t, err)

	var metrics struct {
		Recent  []core.MetricRecord `json:"recent"`
		Summary struct {
			TotalGenerations int      `json:"total_generations"`
			MethodsUsed      []string `json:"methods_used"`
		} `json:"summary"`
	}

	decodeBody(t, resp, &metrics)
	require.Len(t, metrics.Recent, 3)
	require.Equal(t, 3, metrics.Summary.TotalGenerations)
	require.Equal(t, []string{"cpu"}, metrics.Summary.MethodsUsed)
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	panel := newTestPanel(t, defaultExecutor)

	resp, err := http.Get(panel.server.URL + "/status")
	require.NoError(t, err)

	var status struct {
		Voices        []string `json:"voices"`
		ExecutionMode string   `json:"execution_mode"`
	}

	decodeBody(t, resp, &status)
	require.Equal(t, []string{"af_test"}, status.Voices)
	require.Equal(t, "inprocess", status.ExecutionMode)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	panel := newTestPanel(t, defaultExecutor)

	resp, err := http.Get(panel.server.URL + "/healthz")
	require.NoError(t, err)

	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketReplaysHistoryThenStreams(t *testing.T) {
	t.Parallel()

	panel := newTestPanel(t, defaultExecutor)

	panel.log.Info("before connect")

	wsURL := "ws" + strings.TrimPrefix(panel.server.URL, "http") + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	if resp != nil {
		resp.Body.Close()
	}

	defer conn.Close()

	var first struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "log_buffer", first.Type)

	var history []weblog.Entry

	require.NoError(t, json.Unmarshal(first.Data, &history))
	require.NotEmpty(t, history)

	// A new log line arrives as a live event.
	panel.log.Info("after connect")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	for {
		var event struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}

		require.NoError(t, conn.ReadJSON(&event))

		if event.Type != "new_log" {
			continue
		}

		var entry weblog.Entry

		require.NoError(t, json.Unmarshal(event.Data, &entry))

		if entry.Message == "after connect" {
			return
		}
	}
}

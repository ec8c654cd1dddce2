// Package jobs runs synthesis requests arriving over NATS, storing the
// produced audio in the object store and replying with its key.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/unicorn-commander/tts-panel/internal/audio"
	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

const handleJobTimeout = 60 * time.Second

// SynthesisJobEvent asks for one text to be synthesized. TextKey, when set,
// points at the request text in the object store; otherwise Text is inline.
type SynthesisJobEvent struct {
	JobID    string  `json:"job_id"`
	Text     string  `json:"text,omitempty"`
	TextKey  string  `json:"text_key,omitempty"`
	Voice    string  `json:"voice"`
	Speed    float64 `json:"speed,omitempty"`
	Method   string  `json:"method,omitempty"`
	Language string  `json:"language,omitempty"`
}

// AudioReadyEvent is the reply carrying the stored audio key.
type AudioReadyEvent struct {
	JobID         string  `json:"job_id"`
	AudioKey      string  `json:"audio_key,omitempty"`
	Method        string  `json:"method,omitempty"`
	Degraded      bool    `json:"degraded,omitempty"`
	RTF           float64 `json:"rtf,omitempty"`
	AudioDuration float64 `json:"audio_duration,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Worker subscribes to the synthesis job subject and serves each message with
// the engine.
type Worker struct {
	conn    *nats.Conn
	subject string
	store   core.ObjectStore
	engine  core.SpeechEngine
	log     *weblog.Log
}

// NewWorker creates a job worker.
func NewWorker(
	conn *nats.Conn,
	subject string,
	store core.ObjectStore,
	speechEngine core.SpeechEngine,
	log *weblog.Log,
) *Worker {
	return &Worker{
		conn:    conn,
		subject: subject,
		store:   store,
		engine:  speechEngine,
		log:     log,
	}
}

// Run subscribes and serves until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.conn.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Job worker listening on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *Worker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleJobTimeout)
	defer cancel()

	var event SynthesisJobEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		w.log.Error("Failed to unmarshal synthesis job: %v", err)

		return
	}

	reply := w.processJob(ctx, &event)

	replyErr := w.respond(msg, reply)
	if replyErr != nil {
		w.log.Error("Failed to reply for job %s: %v", event.JobID, replyErr)
	}
}

func (w *Worker) processJob(ctx context.Context, event *SynthesisJobEvent) *AudioReadyEvent {
	reply := &AudioReadyEvent{JobID: event.JobID}

	text, err := w.resolveText(ctx, event)
	if err != nil {
		w.log.Error("Job %s: %v", event.JobID, err)
		reply.Error = err.Error()

		return reply
	}

	result, record, err := w.engine.Synthesize(ctx, core.SynthesisRequest{
		Text:     text,
		Voice:    event.Voice,
		Language: event.Language,
		Speed:    event.Speed,
		Method:   event.Method,
	})
	if err != nil {
		w.log.Error("Job %s: synthesis failed: %v", event.JobID, err)
		reply.Error = err.Error()

		return reply
	}

	wavBytes, err := audio.EncodeWAV(result.Audio, result.SampleRate)
	if err != nil {
		w.log.Error("Job %s: %v", event.JobID, err)
		reply.Error = err.Error()

		return reply
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.store.Upload(ctx, audioKey, wavBytes)
	if err != nil {
		w.log.Error("Job %s: upload failed: %v", event.JobID, err)
		reply.Error = err.Error()

		return reply
	}

	reply.AudioKey = audioKey
	reply.Method = string(result.Backend)
	reply.Degraded = result.Degraded
	reply.RTF = record.RTF
	reply.AudioDuration = record.AudioDuration

	return reply
}

func (w *Worker) resolveText(ctx context.Context, event *SynthesisJobEvent) (string, error) {
	if event.TextKey == "" {
		return event.Text, nil
	}

	data, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text for key '%s': %w", event.TextKey, err)
	}

	return string(data), nil
}

func (w *Worker) respond(msg *nats.Msg, reply *AudioReadyEvent) error {
	if msg.Reply == "" {
		return nil
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(data)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/eleven-am/voice-capture/internal/transcription"
	"github.com/redis/go-redis/v9"
)

const (
	transcriptChannel = "transcripts:%s"
	publishTimeout    = 2 * time.Second
)

// Message is the wire form published for each transcript.
type Message struct {
	RunID        string    `json:"run_id"`
	Text         string    `json:"text"`
	IsFinal      bool      `json:"is_final"`
	Confidence   float32   `json:"confidence"`
	Stability    float32   `json:"stability"`
	LanguageCode string    `json:"language_code,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

func ChannelFor(runID string) string {
	return fmt.Sprintf(transcriptChannel, runID)
}

// Publisher forwards transcripts of one run to redis pub/sub. Nothing is
// stored; subscribers that are not listening miss the event.
type Publisher struct {
	redis   *redis.Client
	runID   string
	channel string
	logger  *slog.Logger
	now     func() time.Time
}

func NewPublisher(client *redis.Client, runID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		redis:   client,
		runID:   runID,
		channel: ChannelFor(runID),
		logger:  logger.With("component", "transcript_publisher", "run_id", runID),
		now:     time.Now,
	}
}

func (p *Publisher) Deliver(evt transcription.TranscriptEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, evt); err != nil {
		p.logger.Error("publish transcript failed", "error", err)
	}
}

func (p *Publisher) Publish(ctx context.Context, evt transcription.TranscriptEvent) error {
	data, err := json.Marshal(Message{
		RunID:        p.runID,
		Text:         evt.Text,
		IsFinal:      evt.IsFinal,
		Confidence:   evt.Confidence,
		Stability:    evt.Stability,
		LanguageCode: evt.LanguageCode,
		ReceivedAt:   p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	if err := p.redis.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish transcript: %w", err)
	}

	p.logger.Debug("published transcript", "channel", p.channel, "final", evt.IsFinal)
	return nil
}

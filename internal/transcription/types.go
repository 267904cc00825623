package transcription

import (
	"time"

	"github.com/eleven-am/voice-capture/internal/audio"
	"google.golang.org/api/option"
)

const DefaultLanguage = "es-MX"

type TranscriptEvent struct {
	Text         string  `json:"text"`
	IsFinal      bool    `json:"is_final"`
	Confidence   float32 `json:"confidence,omitempty"`
	Stability    float32 `json:"stability,omitempty"`
	LanguageCode string  `json:"language_code,omitempty"`
}

// Callbacks run on the session's receive goroutine.
type Callbacks struct {
	OnTranscript func(event TranscriptEvent)
	OnError      func(error)
}

type Config struct {
	Endpoint string
	// CredentialsFile is a service account or authorized user JSON file.
	// Empty means application default credentials.
	CredentialsFile   string
	VerifyCredentials bool
	MaxMessageSize    int
	// ClientOptions are appended last and win over the fields above.
	ClientOptions []option.ClientOption
}

type SessionOptions struct {
	LanguageCode    string
	SampleRateHz    int
	Model           string
	MaxAlternatives int
	InterimResults  bool
	Punctuation     bool
	ProfanityFilter bool
	SingleUtterance bool
	// DrainTimeout bounds how long Close waits for trailing results after
	// end-of-input.
	DrainTimeout time.Duration
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.LanguageCode == "" {
		o.LanguageCode = DefaultLanguage
	}
	if o.SampleRateHz == 0 {
		o.SampleRateHz = audio.SampleRate
	}
	if o.MaxAlternatives < 0 {
		o.MaxAlternatives = 0
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 5 * time.Second
	}
	return o
}

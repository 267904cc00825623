package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	speech "cloud.google.com/go/speech/apiv1"
	"github.com/eleven-am/voice-capture/internal/shared"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
)

const defaultMaxMessageSize = 10 * 1024 * 1024

// GoogleBackend is a Cloud Speech-to-Text v1 client. One backend serves one
// capture run.
type GoogleBackend struct {
	client *speech.Client
}

// Connect loads credential material once and builds the speech client.
// Credential problems wrap shared.ErrAuthFailure.
func Connect(ctx context.Context, cfg Config) (*GoogleBackend, error) {
	maxMsgSize := cfg.MaxMessageSize
	if maxMsgSize <= 0 {
		maxMsgSize = defaultMaxMessageSize
	}

	opts := []option.ClientOption{
		option.WithGRPCDialOption(grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMsgSize),
			grpc.MaxCallSendMsgSize(maxMsgSize),
		)),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.CredentialsFile != "" {
		creds, err := LoadCredentials(ctx, cfg.CredentialsFile, cfg.VerifyCredentials)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithCredentials(creds))
	}
	opts = append(opts, cfg.ClientOptions...)

	slog.Info("speech client connecting", "endpoint", cfg.Endpoint)
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create speech client: %v", shared.ErrAuthFailure, err)
	}
	return &GoogleBackend{client: client}, nil
}

// LoadCredentials reads a credentials JSON file. When verify is set a token
// is fetched so unreachable or revoked credentials fail here rather than on
// the first audio frame.
func LoadCredentials(ctx context.Context, path string, verify bool) (*google.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read credentials: %v", shared.ErrAuthFailure, err)
	}

	creds, err := google.CredentialsFromJSON(ctx, data, speech.DefaultAuthScopes()...)
	if err != nil {
		return nil, fmt.Errorf("%w: parse credentials: %v", shared.ErrAuthFailure, err)
	}

	if verify {
		if _, err := creds.TokenSource.Token(); err != nil {
			return nil, fmt.Errorf("%w: fetch token: %v", shared.ErrAuthFailure, err)
		}
	}
	return creds, nil
}

func (b *GoogleBackend) Open(ctx context.Context) (Stream, error) {
	return b.client.StreamingRecognize(ctx)
}

func (b *GoogleBackend) Close() error {
	return b.client.Close()
}

// Package media classifies WhatsApp media payloads, persists the decrypted
// binary to a local directory and returns a stable public locator. The
// directory is served by the bridge's HTTP control surface under /media, so
// Chatwoot can fetch attachments by external URL.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
)

// Kind is the media category of a message payload.
type Kind string

const (
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
)

// Config holds media storage configuration.
type Config struct {
	// Dir is the directory persisted attachments are written to.
	Dir string `yaml:"dir"`

	// PublicURL is the externally reachable base URL of the control server,
	// used to compose attachment locators (e.g. "https://bridge.example.com").
	PublicURL string `yaml:"public_url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Dir:       "./data/media",
		PublicURL: "http://localhost:3000",
	}
}

// Asset is the result of persisting one attachment. Files are never deleted
// by the bridge, so the URL stays valid for the lifetime of the media dir.
type Asset struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
}

// Downloader retrieves and decrypts the binary body of a media message.
// *whatsmeow.Client satisfies this via DownloadAny.
type Downloader interface {
	DownloadAny(ctx context.Context, msg *waE2E.Message) ([]byte, error)
}

// Store persists media payloads to a flat directory.
type Store struct {
	cfg        Config
	downloader Downloader
	logger     *slog.Logger
}

// New creates a Store and ensures the media directory exists.
func New(cfg Config, downloader Downloader, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media dir: %w", err)
	}
	return &Store{
		cfg:        cfg,
		downloader: downloader,
		logger:     logger.With("component", "media"),
	}, nil
}

// Dir returns the directory attachments are written to.
func (s *Store) Dir() string { return s.cfg.Dir }

// Persist downloads the binary body of a media message, writes it under a
// unique filename and returns the resulting asset. The filename combines the
// current unix-millis timestamp with the message id, so collisions are not a
// practical concern and no overwrite protection is needed.
//
// Any retrieval or write failure returns an error; callers treat that as
// "no media attached" and continue with text-only content.
func (s *Store) Persist(ctx context.Context, messageID string, msg *waE2E.Message) (*Asset, error) {
	kind, ext, mimeType, found := Classify(msg)
	if !found {
		return nil, fmt.Errorf("message carries no media payload")
	}

	data, err := s.downloader.DownloadAny(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("downloading media: %w", err)
	}

	if messageID == "" {
		messageID = uuid.NewString()
	}
	filename := fmt.Sprintf("%d_%s.%s", time.Now().UnixMilli(), messageID, ext)

	if err := os.WriteFile(filepath.Join(s.cfg.Dir, filename), data, 0o644); err != nil {
		return nil, fmt.Errorf("writing media file: %w", err)
	}

	asset := &Asset{
		URL:      strings.TrimSuffix(s.cfg.PublicURL, "/") + "/media/" + filename,
		Filename: filename,
		MimeType: mimeType,
		Size:     len(data),
	}

	s.logger.Debug("media persisted",
		"kind", string(kind),
		"filename", filename,
		"size", asset.Size)

	return asset, nil
}

// Classify inspects a message's tagged payload variant and resolves the media
// kind, file extension and MIME type. The variants are mutually exclusive by
// construction of the protocol format; priority order is image, video, audio,
// document. Returns found=false for text-only or empty messages.
func Classify(msg *waE2E.Message) (kind Kind, ext, mimeType string, found bool) {
	if msg == nil {
		return "", "", "", false
	}

	switch {
	case msg.GetImageMessage() != nil:
		img := msg.GetImageMessage()
		return KindImage, "jpg", orDefault(img.GetMimetype(), "image/jpeg"), true

	case msg.GetVideoMessage() != nil:
		vid := msg.GetVideoMessage()
		return KindVideo, "mp4", orDefault(vid.GetMimetype(), "video/mp4"), true

	case msg.GetAudioMessage() != nil:
		audio := msg.GetAudioMessage()
		ext := "mp3"
		if strings.Contains(audio.GetMimetype(), "ogg") {
			ext = "ogg"
		}
		return KindAudio, ext, orDefault(audio.GetMimetype(), "audio/mpeg"), true

	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		ext := "pdf"
		if name := doc.GetFileName(); name != "" {
			if suffix := strings.TrimPrefix(path.Ext(name), "."); suffix != "" {
				ext = suffix
			}
		}
		return KindDocument, ext, orDefault(doc.GetMimetype(), "application/pdf"), true
	}

	return "", "", "", false
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

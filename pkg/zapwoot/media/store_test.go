package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

// fakeDownloader returns canned bytes or a canned error.
type fakeDownloader struct {
	data []byte
	err  error
}

func (f *fakeDownloader) DownloadAny(_ context.Context, _ *waE2E.Message) ([]byte, error) {
	return f.data, f.err
}

func newTestStore(t *testing.T, dl Downloader) *Store {
	t.Helper()
	s, err := New(Config{
		Dir:       t.TempDir(),
		PublicURL: "http://bridge.local:3000",
	}, dl, nil)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return s
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		msg      *waE2E.Message
		kind     Kind
		ext      string
		mimeType string
	}{
		{
			name: "image with declared mime",
			msg: &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
				Mimetype: proto.String("image/png"),
			}},
			kind: KindImage, ext: "jpg", mimeType: "image/png",
		},
		{
			name: "image without mime defaults to jpeg",
			msg:  &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}},
			kind: KindImage, ext: "jpg", mimeType: "image/jpeg",
		},
		{
			name: "video defaults to mp4",
			msg:  &waE2E.Message{VideoMessage: &waE2E.VideoMessage{}},
			kind: KindVideo, ext: "mp4", mimeType: "video/mp4",
		},
		{
			name: "ogg voice note",
			msg: &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
				Mimetype: proto.String("audio/ogg; codecs=opus"),
			}},
			kind: KindAudio, ext: "ogg", mimeType: "audio/ogg; codecs=opus",
		},
		{
			name: "non-ogg audio falls back to mp3",
			msg: &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
				Mimetype: proto.String("audio/mp4"),
			}},
			kind: KindAudio, ext: "mp3", mimeType: "audio/mp4",
		},
		{
			name: "audio without mime",
			msg:  &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}},
			kind: KindAudio, ext: "mp3", mimeType: "audio/mpeg",
		},
		{
			name: "document extension from filename",
			msg: &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
				FileName: proto.String("informe.docx"),
				Mimetype: proto.String("application/vnd.openxmlformats-officedocument.wordprocessingml.document"),
			}},
			kind: KindDocument, ext: "docx",
			mimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		},
		{
			name: "document without filename defaults to pdf",
			msg:  &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}},
			kind: KindDocument, ext: "pdf", mimeType: "application/pdf",
		},
		{
			name: "document with extensionless filename defaults to pdf",
			msg: &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
				FileName: proto.String("informe"),
			}},
			kind: KindDocument, ext: "pdf", mimeType: "application/pdf",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, ext, mimeType, found := Classify(tc.msg)
			if !found {
				t.Fatal("expected media to be found")
			}
			if kind != tc.kind {
				t.Errorf("expected kind %q, got %q", tc.kind, kind)
			}
			if ext != tc.ext {
				t.Errorf("expected ext %q, got %q", tc.ext, ext)
			}
			if mimeType != tc.mimeType {
				t.Errorf("expected mime %q, got %q", tc.mimeType, mimeType)
			}
		})
	}

	t.Run("text message carries no media", func(t *testing.T) {
		msg := &waE2E.Message{Conversation: proto.String("hello")}
		if _, _, _, found := Classify(msg); found {
			t.Error("expected found=false for text message")
		}
	})

	t.Run("nil message", func(t *testing.T) {
		if _, _, _, found := Classify(nil); found {
			t.Error("expected found=false for nil message")
		}
	})
}

func TestPersist(t *testing.T) {
	ctx := context.Background()

	t.Run("writes file and composes locator", func(t *testing.T) {
		payload := []byte("fake-jpeg-bytes")
		s := newTestStore(t, &fakeDownloader{data: payload})

		msg := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Mimetype: proto.String("image/jpeg"),
		}}
		asset, err := s.Persist(ctx, "3EB0ABC123", msg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		pattern := regexp.MustCompile(`^\d+_3EB0ABC123\.jpg$`)
		if !pattern.MatchString(asset.Filename) {
			t.Errorf("filename %q does not match {timestamp}_{messageID}.jpg", asset.Filename)
		}
		want := "http://bridge.local:3000/media/" + asset.Filename
		if asset.URL != want {
			t.Errorf("expected locator %q, got %q", want, asset.URL)
		}
		if asset.Size != len(payload) {
			t.Errorf("expected size %d, got %d", len(payload), asset.Size)
		}

		written, err := os.ReadFile(filepath.Join(s.Dir(), asset.Filename))
		if err != nil {
			t.Fatalf("reading persisted file: %v", err)
		}
		if string(written) != string(payload) {
			t.Error("persisted bytes differ from downloaded bytes")
		}
	})

	t.Run("locator extension follows classification", func(t *testing.T) {
		s := newTestStore(t, &fakeDownloader{data: []byte("x")})

		cases := []struct {
			msg *waE2E.Message
			ext string
		}{
			{&waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, ".jpg"},
			{&waE2E.Message{VideoMessage: &waE2E.VideoMessage{}}, ".mp4"},
			{&waE2E.Message{AudioMessage: &waE2E.AudioMessage{Mimetype: proto.String("audio/ogg")}}, ".ogg"},
			{&waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{FileName: proto.String("a.xlsx")}}, ".xlsx"},
		}
		for i, tc := range cases {
			asset, err := s.Persist(ctx, fmt.Sprintf("MSG%d", i), tc.msg)
			if err != nil {
				t.Fatalf("case %d: unexpected error: %v", i, err)
			}
			if !strings.HasSuffix(asset.Filename, tc.ext) {
				t.Errorf("case %d: expected suffix %q, got %q", i, tc.ext, asset.Filename)
			}
		}
	})

	t.Run("empty message id falls back to generated name", func(t *testing.T) {
		s := newTestStore(t, &fakeDownloader{data: []byte("x")})

		asset, err := s.Persist(ctx, "", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		pattern := regexp.MustCompile(`^\d+_[0-9a-f-]{36}\.jpg$`)
		if !pattern.MatchString(asset.Filename) {
			t.Errorf("expected uuid fallback in filename, got %q", asset.Filename)
		}
	})

	t.Run("download failure propagates", func(t *testing.T) {
		s := newTestStore(t, &fakeDownloader{err: errors.New("media gone")})

		_, err := s.Persist(ctx, "MSG", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}})
		if err == nil {
			t.Fatal("expected error when download fails")
		}
	})

	t.Run("non-media message is rejected", func(t *testing.T) {
		s := newTestStore(t, &fakeDownloader{data: []byte("x")})

		_, err := s.Persist(ctx, "MSG", &waE2E.Message{Conversation: proto.String("hi")})
		if err == nil {
			t.Fatal("expected error for text-only message")
		}
	})
}

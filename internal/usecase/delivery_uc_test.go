//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"reminder-bot/internal/usecase"
)

var testNotice = usecase.Notice{
	Text:           "time to take your pill",
	Caption:        "a cat for you",
	FallbackFormat: "%s\n\n%s",
}

func TestDeliveryUseCase_Deliver(t *testing.T) {
	ctx := context.Background()
	testLogger := newTestLogger()

	t.Run("should send text then image", func(t *testing.T) {
		// --- Arrange ---
		ch := &MockChannel{}
		uc := usecase.NewDeliveryUseCase(ch, &MockContent{}, time.Second, time.Second, testLogger)

		// --- Act ---
		res := uc.Deliver(ctx, 42, testNotice)

		// --- Assert ---
		if !res.TextSent || !res.ImageSent || res.FallbackSent {
			t.Fatalf("unexpected result %+v", res)
		}
		if len(ch.Sent) != 2 {
			t.Fatalf("expected 2 sends, got %d", len(ch.Sent))
		}
		if ch.Sent[0].Kind != "text" || ch.Sent[0].Text != testNotice.Text {
			t.Errorf("first send should be the reminder text, got %+v", ch.Sent[0])
		}
		if ch.Sent[1].Kind != "image" || ch.Sent[1].Ref != "https://example.test/cat.jpg" {
			t.Errorf("second send should be the image, got %+v", ch.Sent[1])
		}
	})

	t.Run("should embed the link in a text when the image fails", func(t *testing.T) {
		// --- Arrange ---
		ch := &MockChannel{ImageErr: errors.New("bad photo url")}
		uc := usecase.NewDeliveryUseCase(ch, &MockContent{}, time.Second, time.Second, testLogger)

		// --- Act ---
		res := uc.Deliver(ctx, 42, testNotice)

		// --- Assert ---
		if !res.TextSent || res.ImageSent || !res.FallbackSent {
			t.Fatalf("unexpected result %+v", res)
		}
		if len(ch.Sent) != 2 {
			t.Fatalf("expected text + fallback text, got %d sends", len(ch.Sent))
		}
		if !strings.Contains(ch.Sent[1].Text, "https://example.test/cat.jpg") {
			t.Errorf("fallback text should carry the raw link, got %q", ch.Sent[1].Text)
		}
	})

	t.Run("should still deliver text when the content source times out", func(t *testing.T) {
		// --- Arrange ---
		ch := &MockChannel{}
		content := &MockContent{FetchFunc: func(ctx context.Context) string {
			<-ctx.Done()
			return "https://fallback.test/cat"
		}}
		uc := usecase.NewDeliveryUseCase(ch, content, 20*time.Millisecond, time.Second, testLogger)

		// --- Act ---
		res := uc.Deliver(ctx, 42, testNotice)

		// --- Assert ---
		if !res.TextSent {
			t.Fatal("text must be delivered regardless of content failure")
		}
		if res.Ref != "https://fallback.test/cat" {
			t.Errorf("expected fallback ref, got %s", res.Ref)
		}
	})

	t.Run("should complete sends after the caller context is cancelled", func(t *testing.T) {
		// --- Arrange ---
		ch := &MockChannel{}
		uc := usecase.NewDeliveryUseCase(ch, &MockContent{}, time.Second, time.Second, testLogger)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		// --- Act ---
		res := uc.Deliver(cctx, 42, testNotice)

		// --- Assert ---
		if !res.TextSent || !res.ImageSent {
			t.Fatalf("in-flight delivery should complete, got %+v", res)
		}
		for i, err := range ch.ctxErrs {
			if err != nil {
				t.Errorf("send %d observed a cancelled context: %v", i, err)
			}
		}
	})
}

func TestDeliveryUseCase_DeliverOneOff(t *testing.T) {
	ctx := context.Background()
	testLogger := newTestLogger()
	oneOff := usecase.OneOff{Searching: "searching...", Caption: "here", FallbackFormat: "%s\n\nlink: %s", Apology: "sorry"}

	t.Run("should announce the search then send the image", func(t *testing.T) {
		ch := &MockChannel{}
		uc := usecase.NewDeliveryUseCase(ch, &MockContent{}, time.Second, time.Second, testLogger)

		res := uc.DeliverOneOff(ctx, 7, oneOff)

		if !res.ImageSent {
			t.Fatalf("expected image sent, got %+v", res)
		}
		if len(ch.Sent) != 2 || ch.Sent[0].Text != "searching..." || ch.Sent[1].Kind != "image" {
			t.Errorf("unexpected sends %+v", ch.Sent)
		}
	})

	t.Run("should send the link and then apologise when the image fails", func(t *testing.T) {
		// --- Arrange ---
		ch := &MockChannel{ImageErr: errors.New("blocked")}
		uc := usecase.NewDeliveryUseCase(ch, &MockContent{}, time.Second, time.Second, testLogger)

		// --- Act ---
		res := uc.DeliverOneOff(ctx, 7, oneOff)

		// --- Assert ---
		if res.ImageSent || !res.FallbackSent {
			t.Fatalf("unexpected result %+v", res)
		}
		if len(ch.Sent) != 3 {
			t.Fatalf("expected searching, link and apology, got %+v", ch.Sent)
		}
		link := ch.Sent[1]
		if link.Kind != "text" || !strings.Contains(link.Text, "https://example.test/cat.jpg") || !strings.Contains(link.Text, "here") {
			t.Errorf("expected fallback text with caption and ref, got %+v", link)
		}
		if last := ch.Sent[2]; last.Text != "sorry" {
			t.Errorf("expected apology after the link, got %+v", last)
		}
	})
}

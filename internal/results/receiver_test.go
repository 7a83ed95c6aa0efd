package results

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lexiqai/live-captions/internal/protocol"
	"github.com/lexiqai/live-captions/internal/scheduler"
	"github.com/lexiqai/live-captions/internal/transport/mock"
	"github.com/rs/zerolog"
)

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	err    error
	done   chan struct{}
}

func newFakeSpeaker() *fakeSpeaker {
	return &fakeSpeaker{done: make(chan struct{}, 8)}
}

func (f *fakeSpeaker) Speak(ctx context.Context, text, languageCode string) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, languageCode+":"+text)
	f.mu.Unlock()
	f.done <- struct{}{}
	return f.err
}

func newReceiver(t *testing.T, speaker Speaker) (*Receiver, *mock.Transport, *[]protocol.TranslationResult) {
	t.Helper()
	tr := mock.New(true)
	sched := scheduler.NewVirtual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	var displayed []protocol.TranslationResult
	r := NewReceiver(tr, sched, DefaultOptions(), func(res protocol.TranslationResult) {
		displayed = append(displayed, res)
	}, speaker, zerolog.Nop())
	return r, tr, &displayed
}

func TestReceiver_RedeliveryDisplaysOnce(t *testing.T) {
	_, tr, displayed := newReceiver(t, nil)

	res := protocol.TranslationResult{
		DeliveryID:     "X",
		UtteranceID:    "U1",
		OriginalText:   "hello",
		TranslatedText: "hola",
		TargetLanguage: "es",
	}
	tr.Deliver(res)
	tr.Deliver(res)

	if len(*displayed) != 1 {
		t.Errorf("Expected 1 display, got %d", len(*displayed))
	}

	acks := mock.SentOf[protocol.TranslationAck](tr)
	if len(acks) != 2 {
		t.Fatalf("Expected 2 acks, got %d", len(acks))
	}
	for _, ack := range acks {
		if ack.DeliveryID != "X" {
			t.Errorf("Expected ack for X, got %q", ack.DeliveryID)
		}
	}
}

func TestReceiver_NoAckWithoutDeliveryID(t *testing.T) {
	_, tr, displayed := newReceiver(t, nil)

	tr.Deliver(protocol.TranslationResult{UtteranceID: "U1", OriginalText: "hello"})

	if len(*displayed) != 1 {
		t.Errorf("Expected 1 display, got %d", len(*displayed))
	}
	if acks := mock.SentOf[protocol.TranslationAck](tr); len(acks) != 0 {
		t.Errorf("Expected no acks, got %d", len(acks))
	}
}

func TestReceiver_AckFailureStillDisplays(t *testing.T) {
	_, tr, displayed := newReceiver(t, nil)
	tr.SendErrors = []error{errors.New("write failed")}

	tr.Deliver(protocol.TranslationResult{DeliveryID: "X", UtteranceID: "U1", OriginalText: "hello"})

	if len(*displayed) != 1 {
		t.Errorf("Expected 1 display, got %d", len(*displayed))
	}
}

func TestReceiver_IgnoresOtherEvents(t *testing.T) {
	_, tr, displayed := newReceiver(t, nil)

	tr.Deliver(protocol.FinalUpdate{Transcript: "hello", UtteranceID: "U1"})

	if len(*displayed) != 0 {
		t.Errorf("Expected no display, got %d", len(*displayed))
	}
	if len(tr.Sent) != 0 {
		t.Errorf("Expected nothing sent, got %d events", len(tr.Sent))
	}
}

func TestReceiver_RequestsMissedResultsOnConnect(t *testing.T) {
	_, tr, _ := newReceiver(t, nil)

	tr.Disconnect()
	tr.Connect()

	if got := len(mock.SentOf[protocol.RequestMissedResults](tr)); got != 1 {
		t.Errorf("Expected 1 requestMissedResults, got %d", got)
	}
}

func TestReceiver_SpeaksDisplayedResults(t *testing.T) {
	speaker := newFakeSpeaker()
	r, tr, _ := newReceiver(t, speaker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	res := protocol.TranslationResult{DeliveryID: "X", UtteranceID: "U1", OriginalText: "hello", TranslatedText: "hola", TargetLanguage: "es"}
	tr.Deliver(res)
	tr.Deliver(res)

	select {
	case <-speaker.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for speech")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Expected nil from Run, got %v", err)
	}

	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	if len(speaker.spoken) != 1 || speaker.spoken[0] != "es:hola" {
		t.Errorf("Expected one spoken translation, got %v", speaker.spoken)
	}
}

func TestReceiver_RunWithoutSpeaker(t *testing.T) {
	r, _, _ := newReceiver(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}

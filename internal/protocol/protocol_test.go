package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncode_AudioChunk(t *testing.T) {
	raw, err := Encode(AudioChunk{
		AudioData:      "AAA=",
		SourceLanguage: "en-US",
		UtteranceID:    "utt-1",
		WordCount:      2,
		SampleRate:     SampleRate,
		Format:         FormatPCM,
	})
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if generic["event"] != "audioChunk" {
		t.Errorf("Expected event 'audioChunk', got %v", generic["event"])
	}
	data, ok := generic["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected data object, got %T", generic["data"])
	}
	if data["utteranceId"] != "utt-1" {
		t.Errorf("Expected utteranceId 'utt-1', got %v", data["utteranceId"])
	}
	if data["sampleRate"] != float64(48000) {
		t.Errorf("Expected sampleRate 48000, got %v", data["sampleRate"])
	}
	if data["format"] != "LINEAR16" {
		t.Errorf("Expected format 'LINEAR16', got %v", data["format"])
	}
}

func TestDecode_ServiceEvents(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, ev Event)
	}{
		{
			name: "interim",
			raw:  `{"event":"interimUpdate","data":{"transcript":"hello","utteranceId":"u1","confidence":0.5}}`,
			check: func(t *testing.T, ev Event) {
				e, ok := ev.(InterimUpdate)
				if !ok {
					t.Fatalf("Expected InterimUpdate, got %T", ev)
				}
				if e.Transcript != "hello" || e.UtteranceID != "u1" || e.Confidence != 0.5 {
					t.Errorf("Unexpected payload %+v", e)
				}
			},
		},
		{
			name: "final",
			raw:  `{"event":"finalUpdate","data":{"transcript":"hello world","utteranceId":"u1","confidence":0.9}}`,
			check: func(t *testing.T, ev Event) {
				if e, ok := ev.(FinalUpdate); !ok || e.Transcript != "hello world" {
					t.Errorf("Expected FinalUpdate 'hello world', got %#v", ev)
				}
			},
		},
		{
			name: "restart pending",
			raw:  `{"event":"streamRestartPending","data":{"reason":"duration_limit"}}`,
			check: func(t *testing.T, ev Event) {
				if e, ok := ev.(StreamRestartPending); !ok || e.Reason != "duration_limit" {
					t.Errorf("Expected StreamRestartPending, got %#v", ev)
				}
			},
		},
		{
			name: "restarted",
			raw:  `{"event":"streamRestarted","data":{"newUtteranceId":"u2"}}`,
			check: func(t *testing.T, ev Event) {
				if e, ok := ev.(StreamRestarted); !ok || e.NewUtteranceID != "u2" {
					t.Errorf("Expected StreamRestarted, got %#v", ev)
				}
			},
		},
		{
			name: "translation without delivery id",
			raw:  `{"event":"translationResult","data":{"utteranceId":"u1","originalText":"hola","translatedText":"hello","sourceLanguage":"es","targetLanguage":"en"}}`,
			check: func(t *testing.T, ev Event) {
				e, ok := ev.(TranslationResult)
				if !ok {
					t.Fatalf("Expected TranslationResult, got %T", ev)
				}
				if e.DeliveryID != "" || e.TranslatedText != "hello" {
					t.Errorf("Unexpected payload %+v", e)
				}
			},
		},
		{
			name: "no payload",
			raw:  `{"event":"requestMissedResults"}`,
			check: func(t *testing.T, ev Event) {
				if _, ok := ev.(RequestMissedResults); !ok {
					t.Errorf("Expected RequestMissedResults, got %T", ev)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode() failed: %v", err)
			}
			tt.check(t, ev)
		})
	}
}

func TestDecode_RoundTripStopStreaming(t *testing.T) {
	raw, err := Encode(StopStreaming{})
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if ev.EventName() != EventStopStreaming {
		t.Errorf("Expected %s, got %s", EventStopStreaming, ev.EventName())
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"not json", `{{{`, nil},
		{"unknown event", `{"event":"bogus","data":{}}`, ErrUnknownEvent},
		{"bad payload", `{"event":"finalUpdate","data":{"transcript":5}}`, nil},
		{"missing utterance id", `{"event":"interimUpdate","data":{"transcript":"x"}}`, ErrMissingField},
		{"ack without id", `{"event":"translationAck","data":{}}`, ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if err == nil {
				t.Fatal("Expected error")
			}
			var protoErr *Error
			if !errors.As(err, &protoErr) {
				t.Errorf("Expected *protocol.Error, got %T", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected error wrapping %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEvent_VariantsRoundTrip(t *testing.T) {
	variants := []Event{
		AudioChunk{UtteranceID: "U1", SampleRate: 48000, Format: FormatPCM},
		InterimUpdate{UtteranceID: "U1"},
		FinalUpdate{UtteranceID: "U1"},
		StreamRestartPending{Reason: "rotate"},
		StreamRestarted{NewUtteranceID: "U2"},
		StopStreaming{},
		TranslationResult{UtteranceID: "U1"},
		TranslationAck{DeliveryID: "D1"},
		RequestMissedResults{},
	}

	seen := make(map[string]bool)
	for _, ev := range variants {
		name := ev.EventName()
		if seen[name] {
			t.Errorf("Duplicate event name %q", name)
		}
		seen[name] = true

		raw, err := Encode(ev)
		if err != nil {
			t.Fatalf("Encode(%s) failed: %v", name, err)
		}
		decoded, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", name, err)
		}
		if decoded.EventName() != name {
			t.Errorf("Expected %s after decode, got %s", name, decoded.EventName())
		}
	}
}

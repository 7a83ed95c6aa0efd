// Package protocol defines the duplex channel message contract.
//
// Every frame on the wire is a JSON envelope {"event": <name>, "data": <payload>}.
// Payloads are modelled as a closed set of typed events so consumers can switch
// exhaustively on the concrete type.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names.
const (
	EventAudioChunk           = "audioChunk"
	EventInterimUpdate        = "interimUpdate"
	EventFinalUpdate          = "finalUpdate"
	EventStreamRestartPending = "streamRestartPending"
	EventStreamRestarted      = "streamRestarted"
	EventStopStreaming        = "stopStreaming"
	EventTranslationResult    = "translationResult"
	EventTranslationAck       = "translationAck"
	EventRequestMissedResults = "requestMissedResults"
)

// Audio format constants carried on every audioChunk.
const (
	SampleRate = 48000
	FormatPCM  = "LINEAR16"
)

var (
	// ErrUnknownEvent is wrapped by Decode for unrecognised event names.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrMissingField is wrapped by Decode when a required field is empty.
	ErrMissingField = errors.New("missing required field")
)

// Event is implemented by every message type in this package and only by
// them, so a type switch over the variants below is exhaustive.
type Event interface {
	EventName() string
	isEvent()
}

// AudioChunk carries one encoded frame (client -> service).
type AudioChunk struct {
	AudioData      string `json:"audioData"`
	SourceLanguage string `json:"sourceLanguage"`
	UtteranceID    string `json:"utteranceId"`
	WordCount      int    `json:"wordCount"`
	SampleRate     int    `json:"sampleRate"`
	Format         string `json:"format"`
}

// InterimUpdate is a provisional transcript (service -> client).
type InterimUpdate struct {
	Transcript  string  `json:"transcript"`
	UtteranceID string  `json:"utteranceId"`
	Confidence  float64 `json:"confidence"`
}

// FinalUpdate is the terminal transcript of an utterance (service -> client).
type FinalUpdate struct {
	Transcript  string  `json:"transcript"`
	UtteranceID string  `json:"utteranceId"`
	Confidence  float64 `json:"confidence"`
}

// StreamRestartPending announces that the service is about to rotate its
// recognition stream (service -> client).
type StreamRestartPending struct {
	Reason string `json:"reason"`
}

// StreamRestarted confirms a rotation (service -> client).
type StreamRestarted struct {
	NewUtteranceID string `json:"newUtteranceId"`
}

// StopStreaming ends the session (client -> service).
type StopStreaming struct{}

// TranslationResult is a translated utterance (service -> receiver).
type TranslationResult struct {
	DeliveryID     string `json:"deliveryId,omitempty"`
	UtteranceID    string `json:"utteranceId"`
	OriginalText   string `json:"originalText"`
	TranslatedText string `json:"translatedText"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

// TranslationAck confirms receipt of a TranslationResult (receiver -> service).
type TranslationAck struct {
	DeliveryID string `json:"deliveryId"`
}

// RequestMissedResults asks the service to replay results sent while the
// receiver was disconnected (receiver -> service).
type RequestMissedResults struct{}

func (AudioChunk) EventName() string           { return EventAudioChunk }
func (InterimUpdate) EventName() string        { return EventInterimUpdate }
func (FinalUpdate) EventName() string          { return EventFinalUpdate }
func (StreamRestartPending) EventName() string { return EventStreamRestartPending }
func (StreamRestarted) EventName() string      { return EventStreamRestarted }
func (StopStreaming) EventName() string        { return EventStopStreaming }
func (TranslationResult) EventName() string    { return EventTranslationResult }
func (TranslationAck) EventName() string       { return EventTranslationAck }
func (RequestMissedResults) EventName() string { return EventRequestMissedResults }

func (AudioChunk) isEvent()           {}
func (InterimUpdate) isEvent()        {}
func (FinalUpdate) isEvent()          {}
func (StreamRestartPending) isEvent() {}
func (StreamRestarted) isEvent()      {}
func (StopStreaming) isEvent()        {}
func (TranslationResult) isEvent()    {}
func (TranslationAck) isEvent()       {}
func (RequestMissedResults) isEvent() {}

// Envelope is the wire framing of a single event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Error reports a malformed or unexpected frame.
type Error struct {
	Event string
	Err   error
}

func (e *Error) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("protocol: %v", e.Err)
	}
	return fmt.Sprintf("protocol: %s: %v", e.Event, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Encode frames ev as an envelope.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", ev.EventName(), err)
	}
	return json.Marshal(Envelope{Event: ev.EventName(), Data: data})
}

// Decode parses an envelope into its typed event. All failures are *Error.
func Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &Error{Err: fmt.Errorf("invalid envelope: %w", err)}
	}

	var ev Event
	switch env.Event {
	case EventAudioChunk:
		ev = &AudioChunk{}
	case EventInterimUpdate:
		ev = &InterimUpdate{}
	case EventFinalUpdate:
		ev = &FinalUpdate{}
	case EventStreamRestartPending:
		ev = &StreamRestartPending{}
	case EventStreamRestarted:
		ev = &StreamRestarted{}
	case EventStopStreaming:
		ev = &StopStreaming{}
	case EventTranslationResult:
		ev = &TranslationResult{}
	case EventTranslationAck:
		ev = &TranslationAck{}
	case EventRequestMissedResults:
		ev = &RequestMissedResults{}
	default:
		return nil, &Error{Event: env.Event, Err: ErrUnknownEvent}
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, &Error{Event: env.Event, Err: fmt.Errorf("invalid payload: %w", err)}
		}
	}

	ev = deref(ev)
	if err := validate(ev); err != nil {
		return nil, &Error{Event: env.Event, Err: err}
	}
	return ev, nil
}

// deref returns events by value so consumers switch on value types only.
func deref(ev Event) Event {
	switch e := ev.(type) {
	case *AudioChunk:
		return *e
	case *InterimUpdate:
		return *e
	case *FinalUpdate:
		return *e
	case *StreamRestartPending:
		return *e
	case *StreamRestarted:
		return *e
	case *StopStreaming:
		return *e
	case *TranslationResult:
		return *e
	case *TranslationAck:
		return *e
	case *RequestMissedResults:
		return *e
	}
	return ev
}

func validate(ev Event) error {
	switch e := ev.(type) {
	case InterimUpdate:
		if e.UtteranceID == "" {
			return fmt.Errorf("utteranceId: %w", ErrMissingField)
		}
	case FinalUpdate:
		if e.UtteranceID == "" {
			return fmt.Errorf("utteranceId: %w", ErrMissingField)
		}
	case TranslationAck:
		if e.DeliveryID == "" {
			return fmt.Errorf("deliveryId: %w", ErrMissingField)
		}
	}
	return nil
}

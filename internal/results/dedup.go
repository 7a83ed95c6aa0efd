// Package results is the display side of the caption channel: it
// deduplicates translated results, acknowledges them and optionally speaks
// them.
package results

import (
	"strings"

	"github.com/lexiqai/live-captions/internal/dedup"
	"github.com/lexiqai/live-captions/internal/protocol"
)

const (
	DefaultDeliveryIDCapacity = 500
	DefaultContentKeyCapacity = 200
)

// Decision is the outcome of Deduplicator.Accept.
type Decision int

const (
	Display           Decision = iota
	DuplicateDelivery          // delivery id already seen (redelivery after a lost ack)
	DuplicateContent           // same utterance and text under a new delivery id
)

func (d Decision) String() string {
	switch d {
	case Display:
		return "display"
	case DuplicateDelivery:
		return "duplicate_delivery"
	case DuplicateContent:
		return "duplicate_content"
	default:
		return "unknown"
	}
}

// Deduplicator decides whether a translated result should be displayed.
// Not safe for concurrent use.
type Deduplicator struct {
	deliveries *dedup.FIFOSet[string]
	contents   *dedup.FIFOSet[string]
}

// NewDeduplicator creates a deduplicator with the given set capacities.
// Non-positive capacities fall back to the defaults.
func NewDeduplicator(deliveryCap, contentCap int) *Deduplicator {
	if deliveryCap <= 0 {
		deliveryCap = DefaultDeliveryIDCapacity
	}
	if contentCap <= 0 {
		contentCap = DefaultContentKeyCapacity
	}
	return &Deduplicator{
		deliveries: dedup.NewFIFOSet[string](deliveryCap),
		contents:   dedup.NewFIFOSet[string](contentCap),
	}
}

// Accept checks the delivery id first, then the (utterance, text) key.
// Both sets are only updated when the result is displayed.
func (d *Deduplicator) Accept(res protocol.TranslationResult) Decision {
	if res.DeliveryID != "" && d.deliveries.Contains(res.DeliveryID) {
		return DuplicateDelivery
	}

	key := contentKey(res)
	if d.contents.Contains(key) {
		return DuplicateContent
	}

	if res.DeliveryID != "" {
		d.deliveries.Add(res.DeliveryID)
	}
	d.contents.Add(key)
	return Display
}

// Reset forgets everything seen so far.
func (d *Deduplicator) Reset() {
	d.deliveries.Clear()
	d.contents.Clear()
}

func contentKey(res protocol.TranslationResult) string {
	return res.UtteranceID + "\x00" + strings.TrimSpace(res.OriginalText)
}

package audit

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/warden/internal/domain"
)

// EventsChannel is the pub/sub channel appended entries are mirrored to for
// the live export stream.
const EventsChannel = "audit:events"

// Publisher pushes a payload to a named channel. *redisstore.Client
// satisfies this interface.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// PublishingLedger decorates a Ledger, mirroring each successfully appended
// entry to a pub/sub channel. Publishing is best effort: the entry is
// already durable and chained, so a publish failure is logged, not fatal.
type PublishingLedger struct {
	domain.Ledger
	pub Publisher
}

// NewPublishingLedger wraps inner with event publishing.
func NewPublishingLedger(inner domain.Ledger, pub Publisher) *PublishingLedger {
	return &PublishingLedger{Ledger: inner, pub: pub}
}

func (l *PublishingLedger) Append(ctx context.Context, e domain.AuditEntry) (uint64, error) {
	seq, err := l.Ledger.Append(ctx, e)
	if err != nil {
		return 0, err
	}

	// Stream consumers get the event fields plus the assigned seq; chain
	// hashes are served by the read API, not the stream.
	e.Seq = seq
	payload, marshalErr := json.Marshal(e)
	if marshalErr != nil {
		log.Warn().Err(marshalErr).Uint64("seq", seq).Msg("audit publish: marshal failed")
		return seq, nil
	}

	if pubErr := l.pub.Publish(ctx, EventsChannel, payload); pubErr != nil {
		log.Warn().Err(pubErr).Uint64("seq", seq).Msg("audit publish failed")
	}
	return seq, nil
}

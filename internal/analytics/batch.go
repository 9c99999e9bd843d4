package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/bazaarly/analytics/internal/model"
)

// Dead-letter reasons.
const (
	ReasonInvalidFormat   = "invalid_format"
	ReasonUnmarshalError  = "unmarshal_error"
	ReasonValidationError = "validation_error"
	ReasonRejectedByStore = "rejected_by_store"
)

// delivery is a decoded stream message waiting to be stored.
type delivery struct {
	msg   redis.XMessage
	event *model.EventRecord
}

// rejection is a message that will never be stored and goes to the
// dead-letter stream instead.
type rejection struct {
	msg    redis.XMessage
	reason string
	err    error
}

// batchResult sorts one read from the stream. Stored and rejected
// messages are acknowledged; pending ones stay in the consumer group's
// pending list and are reclaimed later.
type batchResult struct {
	stored   []delivery
	rejected []rejection
	pending  []delivery
	err      error
}

// decodeBatch splits raw messages into storable deliveries and poison
// messages.
func decodeBatch(messages []redis.XMessage) ([]delivery, []rejection) {
	batch := make([]delivery, 0, len(messages))
	var rejected []rejection

	for _, msg := range messages {
		event, reason, err := DecodeMessage(msg)
		if err != nil {
			rejected = append(rejected, rejection{msg: msg, reason: reason, err: err})
			continue
		}
		batch = append(batch, delivery{msg: msg, event: event})
	}
	return batch, rejected
}

// storeBatch writes batch with one bulk insert. When that fails it falls
// back to one insert per record so a single record the store refuses
// (model.ErrEventRejected) is split out instead of holding back the rest.
// The first retryable failure stops the fallback and leaves that record
// and everything after it pending.
func storeBatch(ctx context.Context, repo Repository, batch []delivery) batchResult {
	var res batchResult
	if len(batch) == 0 {
		return res
	}

	events := make([]*model.EventRecord, len(batch))
	for i, d := range batch {
		events[i] = d.event
	}
	if err := repo.BulkInsert(ctx, events); err == nil {
		res.stored = batch
		return res
	}

	for i, d := range batch {
		err := repo.Insert(ctx, d.event)
		switch {
		case err == nil:
			res.stored = append(res.stored, d)
		case errors.Is(err, model.ErrEventRejected):
			res.rejected = append(res.rejected, rejection{msg: d.msg, reason: ReasonRejectedByStore, err: err})
		default:
			res.pending = batch[i:]
			res.err = err
			return res
		}
	}
	return res
}

// DecodeMessage turns one stream message into a validated record. On
// failure it returns the dead-letter reason alongside the error.
func DecodeMessage(msg redis.XMessage) (*model.EventRecord, string, error) {
	payload, ok := msg.Values[payloadField].(string)
	if !ok {
		return nil, ReasonInvalidFormat, errors.New("payload field missing or not a string")
	}

	event, err := DecodeEvent(payload)
	if err != nil {
		return nil, ReasonUnmarshalError, err
	}
	if err := ValidateRecord(event); err != nil {
		return nil, ReasonValidationError, err
	}
	return event, "", nil
}

// DecodeEvent parses a payload produced by EncodeEvent. Numeric properties
// are kept as json.Number so large ids survive the round trip.
func DecodeEvent(payload string) (*model.EventRecord, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var event model.EventRecord
	if err := dec.Decode(&event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &event, nil
}

func messageIDs(stored []delivery, rejected []rejection) []string {
	ids := make([]string, 0, len(stored)+len(rejected))
	for _, d := range stored {
		ids = append(ids, d.msg.ID)
	}
	for _, r := range rejected {
		ids = append(ids, r.msg.ID)
	}
	return ids
}

package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bazaarly/analytics/internal/model"
)

// EventRepository stores analytics events. It only ever inserts and reads.
type EventRepository struct {
	repo *Repository
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(repo *Repository) *EventRepository {
	return &EventRepository{repo: repo}
}

// Pool returns the underlying pool.
func (r *EventRepository) Pool() *pgxpool.Pool {
	return r.repo.pool
}

const insertEventSQL = `
	INSERT INTO analytics_events (
		id, event_type, event_name, properties, value, currency, user_id,
		source, medium, campaign,
		session_id, ip_address, user_agent, referrer, country, city, device, browser, os,
		created_at, event_date, event_hour
	) VALUES (
		$1, $2, $3, $4::jsonb, $5::numeric, $6, $7,
		$8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19,
		$20, $21, $22
	)
	ON CONFLICT (id) DO NOTHING
`

// Insert writes one event.
func (r *EventRepository) Insert(ctx context.Context, e *model.EventRecord) error {
	args, err := insertArgs(e)
	if err != nil {
		return err
	}
	if _, err := r.repo.pool.Exec(ctx, insertEventSQL, args...); err != nil {
		return fmt.Errorf("insert event %s: %w", e.ID, classifyInsertError(err))
	}
	return nil
}

// BulkInsert writes a batch of events in one round trip. Ids that already
// exist are skipped, which makes redelivery from the stream harmless.
func (r *EventRepository) BulkInsert(ctx context.Context, events []*model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		args, err := insertArgs(e)
		if err != nil {
			return err
		}
		batch.Queue(insertEventSQL, args...)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %s: %w", events[i].ID, classifyInsertError(err))
		}
	}

	return nil
}

// classifyInsertError marks SQLSTATE class 22 (data exception) and 23
// (integrity constraint violation) as model.ErrEventRejected. Anything
// else, including connection loss, stays retryable.
func classifyInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")) {
		return fmt.Errorf("%w: %w", model.ErrEventRejected, err)
	}
	return err
}

func insertArgs(e *model.EventRecord) ([]interface{}, error) {
	props := e.Properties
	if props == nil {
		props = model.Properties{}
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("marshal properties of %s: %w: %w", e.ID, model.ErrEventRejected, err)
	}

	var value interface{}
	if e.Value != nil {
		value = e.Value.String()
	}

	return []interface{}{
		e.ID,
		string(e.EventType),
		e.EventName,
		string(propsJSON),
		value,
		nullableString(e.Currency),
		nullableString(e.UserID),
		nullableString(e.Source),
		nullableString(e.Medium),
		nullableString(e.Campaign),
		nullableString(e.SessionID),
		nullableString(e.IPAddress),
		nullableString(e.UserAgent),
		nullableString(e.Referrer),
		nullableString(e.Country),
		nullableString(e.City),
		nullableString(e.Device),
		nullableString(e.Browser),
		nullableString(e.OS),
		e.CreatedAt.UTC(),
		e.EventDate(),
		e.EventHour(),
	}, nil
}

const selectEventColumns = `
	SELECT id, event_type, event_name, properties, value::text, COALESCE(currency, ''),
		COALESCE(user_id, ''), COALESCE(source, ''), COALESCE(medium, ''), COALESCE(campaign, ''),
		COALESCE(session_id, ''), COALESCE(ip_address, ''), COALESCE(user_agent, ''),
		COALESCE(referrer, ''), COALESCE(country, ''), COALESCE(city, ''),
		COALESCE(device, ''), COALESCE(browser, ''), COALESCE(os, ''),
		created_at
	FROM analytics_events
`

// ScanWindow streams the events with From <= created_at < To, restricted to
// filter.UserID when set, in created_at, id order. Rows are handed to fn one
// at a time; an error from fn aborts the scan.
func (r *EventRepository) ScanWindow(ctx context.Context, filter model.EventFilter, fn func(*model.EventRecord) error) error {
	query := selectEventColumns + ` WHERE created_at >= $1 AND created_at < $2`
	args := []interface{}{filter.From.UTC(), filter.To.UTC()}
	if filter.UserID != "" {
		query += ` AND user_id = $3`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.repo.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate events: %w", err)
	}
	return nil
}

// GetByID loads one event.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.EventRecord, error) {
	rows, err := r.repo.pool.Query(ctx, selectEventColumns+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query event: %w", err)
		}
		return nil, ErrEventNotFound
	}
	e, err := scanEvent(rows)
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return e, nil
}

func scanEvent(rows pgx.Rows) (*model.EventRecord, error) {
	var (
		e         model.EventRecord
		eventType string
		propsJSON []byte
		value     *string
	)

	err := rows.Scan(
		&e.ID,
		&eventType,
		&e.EventName,
		&propsJSON,
		&value,
		&e.Currency,
		&e.UserID,
		&e.Source,
		&e.Medium,
		&e.Campaign,
		&e.SessionID,
		&e.IPAddress,
		&e.UserAgent,
		&e.Referrer,
		&e.Country,
		&e.City,
		&e.Device,
		&e.Browser,
		&e.OS,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.EventType = model.EventType(eventType)
	e.CreatedAt = e.CreatedAt.UTC()

	if e.Properties, err = decodeProperties(propsJSON); err != nil {
		return nil, fmt.Errorf("decode properties of %s: %w", e.ID, err)
	}
	if value != nil {
		d, err := decimal.NewFromString(*value)
		if err != nil {
			return nil, fmt.Errorf("parse value of %s: %w", e.ID, err)
		}
		e.Value = &d
	}

	return &e, nil
}

// decodeProperties keeps numbers as json.Number so ids and amounts are not
// rounded through float64.
func decodeProperties(data []byte) (model.Properties, error) {
	props := model.Properties{}
	if len(data) == 0 {
		return props, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&props); err != nil {
		return nil, err
	}
	return props, nil
}

// Package eventlog records audit events about data changes.
//
// Recording is best effort. A Sink never returns an error: when the events
// table cannot be written, the event goes to a fallback log instead, so a
// failing audit write can never fail or re-enter the operation it describes.
package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/koustreak/backoffice/internal/logger"
	"github.com/koustreak/backoffice/internal/metrics"
)

// Actions recorded by the server.
const (
	ActionInsert = "insert"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionExport = "export"
)

// Event is one audited change.
type Event struct {
	Action      string
	Table       string
	RecordID    any
	Actor       string
	Description string
	At          time.Time
}

// Writer stores an event row. *mapper.TableMapper satisfies it; columns
// the events table lacks are dropped by the mapper.
type Writer interface {
	Insert(ctx context.Context, values map[string]any) (any, error)
}

// Sink records events to a Writer, falling back to a log.
type Sink struct {
	writer   Writer
	table    string
	fallback *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewSink returns a Sink writing to w, the mapper of table. A nil w sends
// every event to fallback.
func NewSink(w Writer, table string, fallback *logger.Logger, m *metrics.Metrics) *Sink {
	if fallback == nil {
		fallback = logger.L()
	}
	return &Sink{writer: w, table: table, fallback: fallback, metrics: m, now: time.Now}
}

// Record stores e. Changes to the events table itself are only logged.
func (s *Sink) Record(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = s.now()
	}
	if e.Actor == "" {
		e.Actor = ActorFrom(ctx)
	}

	if s.writer == nil || e.Table == s.table {
		s.fallback.InfoWith("event", fields(e))
		return
	}

	if err := s.write(ctx, e); err != nil {
		s.metrics.EventDropped()
		s.fallback.ErrorWith("event not stored", err, fields(e))
	}
}

func (s *Sink) write(ctx context.Context, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event writer panicked: %v", r)
		}
	}()

	_, err = s.writer.Insert(ctx, map[string]any{
		"action":      e.Action,
		"table_name":  e.Table,
		"record_id":   formatID(e.RecordID),
		"actor":       e.Actor,
		"description": e.Description,
		"created":     e.At,
	})
	return err
}

func fields(e Event) map[string]interface{} {
	return map[string]interface{}{
		"action":      e.Action,
		"table":       e.Table,
		"record_id":   formatID(e.RecordID),
		"actor":       e.Actor,
		"description": e.Description,
		"at":          e.At.Format(time.RFC3339),
	}
}

func formatID(id any) string {
	if id == nil {
		return ""
	}
	return fmt.Sprint(id)
}

type actorKey struct{}

// WithActor attaches the name of the user performing the request.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor attached by WithActor, or "".
func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

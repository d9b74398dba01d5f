// Package export writes filtered table listings as CSV to object storage.
package export

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/errs"
	"github.com/koustreak/backoffice/internal/filestore"
	"github.com/koustreak/backoffice/internal/logger"
	"github.com/koustreak/backoffice/internal/mapper"
	"github.com/koustreak/backoffice/internal/metrics"
)

const contentType = "text/csv"

// Source is anything that can list rows; both table and view mappers qualify.
type Source interface {
	List(ctx context.Context, opts mapper.ListOptions) (*database.RowSet, error)
}

// Result describes a finished export.
type Result struct {
	Object *filestore.ObjectInfo
	URL    string
	Rows   int
}

// Exporter uploads CSV renderings of listings.
type Exporter struct {
	store   filestore.Store
	bucket  string
	ttl     time.Duration
	metrics *metrics.Metrics
}

// New returns an Exporter writing to bucket. Download links stay valid for ttl.
func New(store filestore.Store, bucket string, ttl time.Duration, m *metrics.Metrics) *Exporter {
	return &Exporter{store: store, bucket: bucket, ttl: ttl, metrics: m}
}

// Export lists src with opts, uploads the rows as CSV to key and returns a
// presigned download URL.
func (e *Exporter) Export(ctx context.Context, src Source, opts mapper.ListOptions, key string) (*Result, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "export key must not be empty")
	}

	rs, err := src.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	body, err := Encode(rs)
	if err != nil {
		return nil, err
	}

	obj, err := e.store.PutObject(ctx, e.bucket, key, bytes.NewReader(body), int64(len(body)), contentType)
	if err != nil {
		return nil, err
	}
	url, err := e.store.PresignGetURL(ctx, e.bucket, key, e.ttl)
	if err != nil {
		return nil, err
	}

	e.metrics.RowsExported(rs.Len())
	logger.FromContext(ctx).InfoWith("export uploaded", map[string]interface{}{
		"bucket": e.bucket,
		"key":    key,
		"rows":   rs.Len(),
		"bytes":  len(body),
	})
	return &Result{Object: obj, URL: url, Rows: rs.Len()}, nil
}

// Encode renders rs as CSV with a header row.
func Encode(rs *database.RowSet) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(rs.Columns); err != nil {
		return nil, errs.Wrap(errs.ErrKindUnknown, "failed to write CSV header", err)
	}
	record := make([]string, len(rs.Columns))
	for _, rec := range rs.Records {
		for i, col := range rs.Columns {
			record[i] = formatValue(rec[col])
		}
		if err := w.Write(record); err != nil {
			return nil, errs.Wrap(errs.ErrKindUnknown, "failed to write CSV row", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errs.Wrap(errs.ErrKindUnknown, "failed to flush CSV", err)
	}
	return buf.Bytes(), nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		return formatValue(dv)
	default:
		return fmt.Sprint(v)
	}
}

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/errs"
	"github.com/koustreak/backoffice/internal/eventlog"
	"github.com/koustreak/backoffice/internal/logger"
	"github.com/koustreak/backoffice/internal/mapper"
	"github.com/koustreak/backoffice/internal/query"
)

const defaultPageSize = 50

type columnResponse struct {
	Name        string   `json:"name"`
	DataType    string   `json:"data_type"`
	Kind        string   `json:"kind"`
	Nullable    bool     `json:"nullable"`
	PrimaryKey  bool     `json:"primary_key"`
	Unique      bool     `json:"unique"`
	Default     *string  `json:"default,omitempty"`
	MaxLength   *int64   `json:"max_length,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
}

type tableResponse struct {
	Name       string           `json:"name"`
	PrimaryKey string           `json:"primary_key,omitempty"`
	OrderBy    string           `json:"order_by"`
	Direction  string           `json:"direction"`
	Columns    []columnResponse `json:"columns"`
}

type rowsResponse struct {
	Rows   []database.Record `json:"rows"`
	Count  int               `json:"count"`
	Total  *int64            `json:"total,omitempty"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if err := s.db.Ping(r.Context()); err != nil {
		logger.FromContext(r.Context()).WarnWith("health check failed", err, nil)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"tables": s.registry.Tables(),
		"views":  s.registry.Views(),
	})
}

func (s *Server) handleDescribeTable(w http.ResponseWriter, r *http.Request) {
	m, ok := s.table(w, r)
	if !ok {
		return
	}

	orderBy, dir := m.OrderBy()
	resp := tableResponse{
		Name:       m.Table(),
		PrimaryKey: m.PrimaryKey(),
		OrderBy:    orderBy,
		Direction:  dir.String(),
	}
	for _, c := range m.Columns() {
		col := columnResponse{
			Name:        c.Name(),
			DataType:    c.DataType(),
			Kind:        c.Kind().String(),
			Nullable:    c.IsNullable(),
			PrimaryKey:  c.IsPrimaryKey(),
			Unique:      c.IsUnique(),
			Constraints: c.Constraints(),
		}
		if d, ok := c.Default(); ok {
			col.Default = &d
		}
		if n, ok := c.MaxLength(); ok {
			col.MaxLength = &n
		}
		resp.Columns = append(resp.Columns, col)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	m, ok := s.table(w, r)
	if !ok {
		return
	}
	opts, err := s.listOptions(r, m.Column)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rs, err := m.List(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// List has checked the filter columns, so Count can reuse the filter.
	total, err := m.Count(r.Context(), opts.Filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRows(w, rs, opts, &total)
}

func (s *Server) handleListViewRows(w http.ResponseWriter, r *http.Request) {
	v, err := s.registry.View(chi.URLParam(r, "view"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// View aliases carry no catalog types; values are bound as text.
	opts, err := s.listOptions(r, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rs, err := v.List(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRows(w, rs, opts, nil)
}

func (s *Server) handleGetRow(w http.ResponseWriter, r *http.Request) {
	m, pk, ok := s.tableAndKey(w, r)
	if !ok {
		return
	}
	rec, err := m.SelectForPrimaryKey(r.Context(), pk, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rec == nil {
		s.writeError(w, r, errs.Newf(errs.ErrKindNotFound, "%s: no row with %s = %v", m.Table(), m.PrimaryKey(), pk))
		return
	}
	writeJSON(w, http.StatusOK, jsonRecord(rec))
}

func (s *Server) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	m, ok := s.table(w, r)
	if !ok {
		return
	}
	input, err := decodeInput(r, m)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := m.Validate(input); err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := m.Insert(r.Context(), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.events.Record(r.Context(), eventlog.Event{
		Action:      eventlog.ActionInsert,
		Table:       m.Table(),
		RecordID:    id,
		Description: eventlog.DescribeChanges(columnValues(m, input), nil, nil),
	})
	writeJSON(w, http.StatusCreated, map[string]any{"id": jsonValue(id)})
}

func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	m, pk, ok := s.tableAndKey(w, r)
	if !ok {
		return
	}
	input, err := decodeInput(r, m)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, err := m.SelectForPrimaryKey(r.Context(), pk, "*")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rec == nil {
		s.writeError(w, r, errs.Newf(errs.ErrKindNotFound, "%s: no row with %s = %v", m.Table(), m.PrimaryKey(), pk))
		return
	}

	changed := m.ChangedValues(input, rec)
	if len(changed) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"id": jsonValue(pk), "changed": []string{}})
		return
	}
	if err := m.Validate(changed); err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := m.UpdateByPrimaryKey(r.Context(), changed, pk, rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.events.Record(r.Context(), eventlog.Event{
		Action:      eventlog.ActionUpdate,
		Table:       m.Table(),
		RecordID:    id,
		Description: eventlog.DescribeChanges(changed, rec, nil),
	})
	writeJSON(w, http.StatusOK, map[string]any{"id": jsonValue(id), "changed": sortedKeys(changed)})
}

// handleReplaceRow writes every submitted column without comparing
// against the stored row.
func (s *Server) handleReplaceRow(w http.ResponseWriter, r *http.Request) {
	m, pk, ok := s.tableAndKey(w, r)
	if !ok {
		return
	}
	input, err := decodeInput(r, m)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	values := columnValues(m, input)
	if err := m.Validate(values); err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := m.UpdateAllByPrimaryKey(r.Context(), values, pk)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.events.Record(r.Context(), eventlog.Event{
		Action:      eventlog.ActionUpdate,
		Table:       m.Table(),
		RecordID:    id,
		Description: eventlog.DescribeChanges(values, nil, nil),
	})
	writeJSON(w, http.StatusOK, map[string]any{"id": jsonValue(id), "changed": sortedKeys(values)})
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	m, pk, ok := s.tableAndKey(w, r)
	if !ok {
		return
	}
	id, err := m.DeleteByPrimaryKey(r.Context(), pk, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.events.Record(r.Context(), eventlog.Event{
		Action:   eventlog.ActionDelete,
		Table:    m.Table(),
		RecordID: id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "export is not configured", Kind: errs.ErrKindUnknown.String()})
		return
	}
	m, ok := s.table(w, r)
	if !ok {
		return
	}
	opts, err := s.listOptions(r, m.Column)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// An export is not paged unless the caller asks for it.
	if r.URL.Query().Get("limit") == "" {
		opts.Limit = 0
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		key = fmt.Sprintf("exports/%s/%s-%s.csv", m.Table(), time.Now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	}

	res, err := s.exporter.Export(r.Context(), m, opts, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.events.Record(r.Context(), eventlog.Event{
		Action:      eventlog.ActionExport,
		Table:       m.Table(),
		Description: fmt.Sprintf("%d rows to %s", res.Rows, res.Object.Key),
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"url":  res.URL,
		"key":  res.Object.Key,
		"rows": res.Rows,
	})
}

func (s *Server) table(w http.ResponseWriter, r *http.Request) (*mapper.TableMapper, bool) {
	m, err := s.registry.Table(chi.URLParam(r, "table"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return m, true
}

func (s *Server) tableAndKey(w http.ResponseWriter, r *http.Request) (*mapper.TableMapper, any, bool) {
	m, ok := s.table(w, r)
	if !ok {
		return nil, nil, false
	}
	if m.PrimaryKey() == "" {
		s.writeError(w, r, errs.Newf(errs.ErrKindInvalidInput, "table %s has no primary key", m.Table()))
		return nil, nil, false
	}
	col, _ := m.Column(m.PrimaryKey())
	pk, err := col.Parse(chi.URLParam(r, "pk"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, nil, false
	}
	return m, pk, true
}

// listOptions reads where, order_by, dir, limit and offset. Each where
// parameter is "column|operator|value"; a value of "null" binds NULL.
// lookup, when set, converts values to the column's type.
func (s *Server) listOptions(r *http.Request, lookup func(string) (*mapper.Column, bool)) (mapper.ListOptions, error) {
	params := r.URL.Query()
	opts := mapper.ListOptions{Limit: defaultPageSize, OrderBy: params.Get("order_by")}

	for _, raw := range params["where"] {
		parts := strings.SplitN(raw, "|", 3)
		if len(parts) != 3 {
			return opts, errs.Newf(errs.ErrKindInvalidInput, "where %q: want column|operator|value", raw)
		}
		column, op, value := strings.TrimSpace(parts[0]), parts[1], parts[2]

		var v any = value
		canon, _ := query.ValidOperator(op)
		switch {
		case value == "null":
			v = nil
		case canon == "LIKE" || canon == "ILIKE":
		case lookup != nil:
			if col, ok := lookup(column); ok {
				parsed, err := col.Parse(value)
				if err != nil {
					return opts, err
				}
				v = parsed
			}
		}
		opts.Filter = opts.Filter.And(column, op, v)
	}

	dir, err := query.ParseDirection(params.Get("dir"))
	if err != nil {
		return opts, err
	}
	opts.Direction = dir

	if opts.Limit, err = intParam(params.Get("limit"), defaultPageSize); err != nil {
		return opts, err
	}
	if opts.Limit > s.maxPageSize {
		opts.Limit = s.maxPageSize
	}
	if opts.Offset, err = intParam(params.Get("offset"), 0); err != nil {
		return opts, err
	}
	return opts, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errs.Newf(errs.ErrKindInvalidInput, "%q is not a non-negative integer", raw)
	}
	return n, nil
}

// decodeInput reads a JSON object from the body. Numbers are converted
// through the target column so integers stay integers.
func decodeInput(r *http.Request, m *mapper.TableMapper) (map[string]any, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var input map[string]any
	if err := dec.Decode(&input); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "request body must be a JSON object", err)
	}
	for k, v := range input {
		num, ok := v.(json.Number)
		if !ok {
			continue
		}
		col, ok := m.Column(k)
		if !ok {
			input[k] = num.String()
			continue
		}
		parsed, err := col.Parse(num.String())
		if err != nil {
			return nil, err
		}
		input[k] = parsed
	}
	return input, nil
}

func columnValues(m *mapper.TableMapper, input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for k, v := range input {
		if _, ok := m.Column(k); ok {
			out[k] = v
		}
	}
	return out
}

func writeRows(w http.ResponseWriter, rs *database.RowSet, opts mapper.ListOptions, total *int64) {
	rows := make([]database.Record, 0, rs.Len())
	for _, rec := range rs.Records {
		rows = append(rows, jsonRecord(rec))
	}
	writeJSON(w, http.StatusOK, rowsResponse{
		Rows:   rows,
		Count:  len(rows),
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

func jsonRecord(rec database.Record) database.Record {
	out := make(database.Record, len(rec))
	for k, v := range rec {
		out[k] = jsonValue(v)
	}
	return out
}

// jsonValue turns driver byte slices (MySQL text columns) into strings so
// they do not encode as base64.
func jsonValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

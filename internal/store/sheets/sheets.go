// Package sheets implements the record store on a Google Sheets worksheet,
// one row per signer, columns located by header name.
//
// Sheets has no conditional writes. Upsert and CompareAndSwap are
// read-check-write under a process-local mutex, so two processes writing the
// same row can still race. Deploy it as the only writer or prefer DynamoDB.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/internal/lifecycle"
	"github.com/dwsmith1983/contractsync/internal/store"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*SheetsStore)(nil)

const defaultSheet = "Contratos"

// Column headers, matched case-insensitively.
const (
	colName      = "cliente_nome"
	colEmail     = "email"
	colDocument  = "contrato"
	colLink      = "link_contrato"
	colEnvelope  = "envelope_id"
	colCreated   = "data_criacao"
	colStatus    = "status"
	colCompleted = "data_conclusao"
	colUpdated   = "atualizado_em"
)

// statusLabels are the status cells the operations team reads and types.
var statusLabels = map[types.ContractStatus]string{
	types.ContractPending:  "Pendente",
	types.ContractSent:     "Enviado",
	types.ContractSigned:   "Assinado",
	types.ContractDeclined: "Recusado",
	types.ContractVoided:   "Cancelado",
}

// defaultHeader is written to an empty worksheet.
var defaultHeader = []string{colName, colEmail, colDocument, colLink, colEnvelope, colCreated, colStatus, colCompleted, colUpdated}

// SheetsStore implements store.Store on one worksheet.
type SheetsStore struct {
	values        ValuesAPI
	spreadsheetID string
	sheet         string
	logger        *slog.Logger

	mu sync.Mutex
}

// New connects to the Sheets API. credentialsJSON takes precedence over
// cfg.CredentialsFile; with neither, application default credentials apply.
func New(ctx context.Context, cfg *types.SheetsConfig, credentialsJSON []byte) (*SheetsStore, error) {
	opts := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsScope)}
	switch {
	case len(credentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	return NewFromValues(serviceValues{svc: svc}, cfg.SpreadsheetID, cfg.Sheet), nil
}

// NewFromValues creates a SheetsStore over an existing values client.
func NewFromValues(values ValuesAPI, spreadsheetID, sheet string) *SheetsStore {
	if sheet == "" {
		sheet = defaultSheet
	}
	return &SheetsStore{
		values:        values,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		logger:        slog.Default(),
	}
}

// Ping reads the header row.
func (s *SheetsStore) Ping(ctx context.Context) error {
	if _, err := s.values.Get(ctx, s.spreadsheetID, s.a1("1:1")); err != nil {
		return fmt.Errorf("sheets ping failed: %w", err)
	}
	return nil
}

// Get returns the row for email.
func (s *SheetsStore) Get(ctx context.Context, email string) (*types.ContractRecord, error) {
	t, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	i := t.find(store.NormalizeEmail(email))
	if i < 0 {
		return nil, nil
	}
	rec := t.decode(t.rows[i])
	return &rec, nil
}

// GetByEnvelope scans the envelope column. Worksheets without one report
// store.ErrEnvelopeIndexUnsupported.
func (s *SheetsStore) GetByEnvelope(ctx context.Context, envelopeID string) (*types.ContractRecord, error) {
	t, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(t.cols) > 0 {
		if _, ok := t.cols[colEnvelope]; !ok {
			return nil, store.ErrEnvelopeIndexUnsupported
		}
	}
	for _, row := range t.rows {
		if t.cell(row, colEnvelope) == envelopeID {
			rec := t.decode(row)
			return &rec, nil
		}
	}
	return nil, nil
}

// Upsert updates the signer's row in place or appends a new one.
func (s *SheetsStore) Upsert(ctx context.Context, rec types.ContractRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Email = store.NormalizeEmail(rec.Email)
	t, err := s.load(ctx)
	if err != nil {
		return err
	}
	if len(t.cols) == 0 {
		if t, err = s.writeHeader(ctx); err != nil {
			return err
		}
	}

	i := t.find(rec.Email)
	if i < 0 {
		if err := s.values.Append(ctx, s.spreadsheetID, s.a1("A1"), [][]any{t.encode(nil, rec)}); err != nil {
			return fmt.Errorf("append contract %q: %w", rec.Email, err)
		}
		return nil
	}

	cur := t.decode(t.rows[i])
	switch {
	case lifecycle.IsTerminal(cur.Status):
		return fmt.Errorf("%w: contract %q is already terminal", failure.ErrConflictingTerminalState, rec.Email)
	case cur.Status != "" && !lifecycle.IsKnown(cur.Status):
		return fmt.Errorf("%w: contract %q has unrecognized status %q", failure.ErrInvalidTransition, rec.Email, cur.Status)
	}
	return s.writeRow(ctx, t, i, rec)
}

// CompareAndSwap rewrites the row if its status still equals expected and
// it is still bound to next.EnvelopeID.
func (s *SheetsStore) CompareAndSwap(ctx context.Context, email string, expected types.ContractStatus, next types.ContractRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next.Email = store.NormalizeEmail(email)
	t, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	i := t.find(next.Email)
	if i < 0 {
		return false, nil
	}
	if cur := t.decode(t.rows[i]); cur.Status != expected || cur.EnvelopeID != next.EnvelopeID {
		return false, nil
	}
	if err := s.writeRow(ctx, t, i, next); err != nil {
		return false, err
	}
	return true, nil
}

// ListByStatus scans the worksheet, oldest update first.
func (s *SheetsStore) ListByStatus(ctx context.Context, status types.ContractStatus, limit int) ([]types.ContractRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	t, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	var out []types.ContractRecord
	for _, row := range t.rows {
		if rec := t.decode(row); rec.Email != "" && rec.Status == status {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SheetsStore) writeRow(ctx context.Context, t *table, i int, rec types.ContractRecord) error {
	// Data rows start on sheet row 2.
	ref := fmt.Sprintf("A%d", i+2)
	if err := s.values.Update(ctx, s.spreadsheetID, s.a1(ref), [][]any{t.encode(t.rows[i], rec)}); err != nil {
		return fmt.Errorf("update contract %q: %w", rec.Email, err)
	}
	return nil
}

func (s *SheetsStore) writeHeader(ctx context.Context) (*table, error) {
	row := make([]any, len(defaultHeader))
	for i, h := range defaultHeader {
		row[i] = h
	}
	if err := s.values.Update(ctx, s.spreadsheetID, s.a1("A1"), [][]any{row}); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	s.logger.Info("initialized contract worksheet", "sheet", s.sheet)
	return newTable([][]any{row})
}

func (s *SheetsStore) load(ctx context.Context) (*table, error) {
	rows, err := s.values.Get(ctx, s.spreadsheetID, s.a1(""))
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", s.sheet, err)
	}
	return newTable(rows)
}

// a1 builds an A1 range on the worksheet; an empty ref selects the whole sheet.
func (s *SheetsStore) a1(ref string) string {
	name := "'" + strings.ReplaceAll(s.sheet, "'", "''") + "'"
	if ref == "" {
		return name
	}
	return name + "!" + ref
}

// table is one snapshot of the worksheet.
type table struct {
	cols  map[string]int
	width int
	rows  [][]any
}

func newTable(rows [][]any) (*table, error) {
	t := &table{cols: make(map[string]int)}
	if len(rows) == 0 {
		return t, nil
	}
	for i, h := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(fmt.Sprint(h)))
		if name != "" {
			t.cols[name] = i
		}
	}
	t.width = len(rows[0])
	for _, required := range []string{colEmail, colStatus} {
		if _, ok := t.cols[required]; !ok {
			return nil, fmt.Errorf("worksheet is missing required column %q", required)
		}
	}
	t.rows = rows[1:]
	return t, nil
}

func (t *table) cell(row []any, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}

func (t *table) find(email string) int {
	for i, row := range t.rows {
		if store.NormalizeEmail(t.cell(row, colEmail)) == email {
			return i
		}
	}
	return -1
}

func (t *table) decode(row []any) types.ContractRecord {
	status := parseStatusLabel(t.cell(row, colStatus))
	rec := types.ContractRecord{
		Email:       store.NormalizeEmail(t.cell(row, colEmail)),
		Name:        t.cell(row, colName),
		DocumentKey: t.cell(row, colDocument),
		SigningLink: t.cell(row, colLink),
		EnvelopeID:  t.cell(row, colEnvelope),
		Status:      status,
		CreatedAt:   parseTime(t.cell(row, colCreated)),
		UpdatedAt:   parseTime(t.cell(row, colUpdated)),
	}
	if c := parseTime(t.cell(row, colCompleted)); !c.IsZero() {
		rec.CompletedAt = &c
	}
	return rec
}

// encode lays rec out over prev, keeping cells in columns the store does not own.
func (t *table) encode(prev []any, rec types.ContractRecord) []any {
	row := make([]any, t.width)
	copy(row, prev)
	for i := range row {
		if row[i] == nil {
			row[i] = ""
		}
	}

	set := func(col, val string) {
		if i, ok := t.cols[col]; ok {
			row[i] = val
		}
	}
	set(colName, rec.Name)
	set(colEmail, rec.Email)
	set(colDocument, rec.DocumentKey)
	set(colLink, rec.SigningLink)
	set(colEnvelope, rec.EnvelopeID)
	set(colCreated, formatTime(rec.CreatedAt))
	set(colStatus, statusLabel(rec.Status))
	set(colUpdated, formatTime(rec.UpdatedAt))
	if rec.CompletedAt != nil {
		set(colCompleted, formatTime(*rec.CompletedAt))
	} else {
		set(colCompleted, "")
	}
	return row
}

func statusLabel(s types.ContractStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// parseStatusLabel reads a status cell. The sheet labels, canonical values and
// English display names are accepted in any case; anything else is returned
// as written so callers can refuse it.
func parseStatusLabel(cell string) types.ContractStatus {
	cell = strings.TrimSpace(cell)
	for st, l := range statusLabels {
		if strings.EqualFold(cell, l) {
			return st
		}
	}
	if st, ok := types.ParseContractStatus(strings.ToUpper(cell)); ok {
		return st
	}
	return types.ContractStatus(cell)
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}

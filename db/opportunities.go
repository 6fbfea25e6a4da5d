// ABOUTME: Opportunity and update-history database operations
// ABOUTME: Field batches and stage moves are written in single transactions with history rows
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/dealflow/crm"
	"github.com/harperreed/dealflow/models"
)

// StageField is the history field name used for stage moves.
const StageField = "StageName"

// Opportunity is a stored opportunity with bookkeeping timestamps.
type Opportunity struct {
	models.OpportunityState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry records one applied change.
type HistoryEntry struct {
	ID            uuid.UUID `json:"id"`
	OpportunityID string    `json:"opportunity_id"`
	Field         string    `json:"field"`
	OldValue      any       `json:"old_value"`
	NewValue      any       `json:"new_value"`
	Confidence    string    `json:"confidence,omitempty"`
	Source        string    `json:"source,omitempty"`
	ChangedAt     time.Time `json:"changed_at"`
}

const opportunityColumns = `id, name, account_name, stage, fields, created_at, updated_at`

func CreateOpportunity(ctx context.Context, db *sql.DB, opp *Opportunity) error {
	opp.Name = strings.TrimSpace(opp.Name)
	if opp.Name == "" {
		return errors.New("opportunity name is required")
	}
	if opp.ID == "" {
		opp.ID = uuid.New().String()
	}
	if opp.Stage == "" {
		opp.Stage = models.StageProspecting
	}
	if opp.Fields == nil {
		opp.Fields = map[string]any{}
	}
	now := time.Now().UTC()
	opp.CreatedAt = now
	opp.UpdatedAt = now

	fields, err := json.Marshal(opp.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO opportunities (id, name, account_name, stage, fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, opp.ID, opp.Name, opp.AccountName, opp.Stage, string(fields), opp.CreatedAt, opp.UpdatedAt)
	return err
}

// GetOpportunity returns nil, nil when no row has the given id.
func GetOpportunity(ctx context.Context, db *sql.DB, id string) (*Opportunity, error) {
	row := db.QueryRowContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = ?`, id)
	opp, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return opp, err
}

// FindOpportunityByName prefers a case-insensitive exact name match, then a
// unique partial match. Several partial matches yield crm.ErrAmbiguous.
func FindOpportunityByName(ctx context.Context, db *sql.DB, name string) (*Opportunity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	row := db.QueryRowContext(ctx, `
		SELECT `+opportunityColumns+` FROM opportunities
		WHERE name = ? COLLATE NOCASE
		ORDER BY updated_at DESC
		LIMIT 1
	`, name)
	opp, err := scanOpportunity(row)
	if err == nil {
		return opp, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	matches, err := FindOpportunities(ctx, db, name, "", 2)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%q: %w", name, crm.ErrAmbiguous)
	}
}

// likeEscaper makes user text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// FindOpportunities matches query against name and account, optionally
// filtered by stage, most recently updated first.
func FindOpportunities(ctx context.Context, db *sql.DB, query, stage string, limit int) ([]Opportunity, error) {
	if limit <= 0 {
		limit = 10
	}

	var where []string
	var args []any
	if query != "" {
		pattern := "%" + likeEscaper.Replace(query) + "%"
		where = append(where, `(name LIKE ? ESCAPE '\' OR account_name LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if stage != "" {
		where = append(where, "stage = ? COLLATE NOCASE")
		args = append(args, stage)
	}

	q := `SELECT ` + opportunityColumns + ` FROM opportunities`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var opps []Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		opps = append(opps, *opp)
	}
	return opps, rows.Err()
}

// WriteFields applies the batch in one transaction. Either every field and
// its history row lands or nothing does.
func WriteFields(ctx context.Context, db *sql.DB, id string, updates []models.FieldUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT fields FROM opportunities WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", id, crm.ErrNotFound)
	}
	if err != nil {
		return err
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, u := range updates {
		if u.Field == "" {
			return errors.New("field update without a field name")
		}
		if err := insertHistory(ctx, tx, id, u.Field, fields[u.Field], u.Value, u.Confidence.String(), u.Source, now); err != nil {
			return err
		}
		fields[u.Field] = u.Value
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE opportunities SET fields = ?, updated_at = ? WHERE id = ?
	`, string(encoded), now, id); err != nil {
		return err
	}

	return tx.Commit()
}

func AdvanceStage(ctx context.Context, db *sql.DB, id, toStage string) error {
	toStage = strings.TrimSpace(toStage)
	if toStage == "" {
		return errors.New("target stage is required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT stage FROM opportunities WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", id, crm.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if current == toStage {
		return nil
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE opportunities SET stage = ?, updated_at = ? WHERE id = ?
	`, toStage, now, id); err != nil {
		return err
	}
	if err := insertHistory(ctx, tx, id, StageField, current, toStage, "", "", now); err != nil {
		return err
	}

	return tx.Commit()
}

// GetOpportunityHistory returns changes oldest first.
func GetOpportunityHistory(ctx context.Context, db *sql.DB, id string) ([]HistoryEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, opportunity_id, field, old_value, new_value, confidence, source, changed_at
		FROM opportunity_history
		WHERE opportunity_id = ?
		ORDER BY changed_at ASC, rowid ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var oldValue, newValue sql.NullString
		if err := rows.Scan(&e.ID, &e.OpportunityID, &e.Field, &oldValue, &newValue, &e.Confidence, &e.Source, &e.ChangedAt); err != nil {
			return nil, err
		}
		e.OldValue = decodeValue(oldValue)
		e.NewValue = decodeValue(newValue)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func DeleteOpportunity(ctx context.Context, db *sql.DB, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM opportunity_history WHERE opportunity_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM opportunities WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", id, crm.ErrNotFound)
	}

	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(row scanner) (*Opportunity, error) {
	opp := &Opportunity{}
	var raw string
	if err := row.Scan(&opp.ID, &opp.Name, &opp.AccountName, &opp.Stage, &raw, &opp.CreatedAt, &opp.UpdatedAt); err != nil {
		return nil, err
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}
	opp.Fields = fields
	return opp, nil
}

func decodeFields(raw string) (map[string]any, error) {
	fields := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, oppID, field string, oldValue, newValue any, confidence, source string, at time.Time) error {
	oldJSON, err := encodeValue(oldValue)
	if err != nil {
		return err
	}
	newJSON, err := encodeValue(newValue)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO opportunity_history (id, opportunity_id, field, old_value, new_value, confidence, source, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), oppID, field, oldJSON, newJSON, confidence, source, at)
	return err
}

func encodeValue(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode value: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeValue(s sql.NullString) any {
	if !s.Valid {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return s.String
	}
	return v
}

// ABOUTME: Contract for the CRM page collaborator that reads and writes opportunities
// ABOUTME: Implemented by page automation in production and by the local SQLite store
package crm

import (
	"context"
	"errors"

	"github.com/harperreed/dealflow/models"
)

var (
	// ErrNotFound is returned by ReadOpportunity when no record matches.
	ErrNotFound = errors.New("opportunity not found")
	// ErrAmbiguous is returned when an identifier matches several records.
	ErrAmbiguous = errors.New("opportunity identifier is ambiguous")
)

// Page reads and writes opportunity records. Implementations are treated as
// unreliable I/O; every call may fail.
type Page interface {
	// ReadOpportunity resolves an ID or name to a fresh snapshot.
	ReadOpportunity(ctx context.Context, identifier string) (models.OpportunityState, error)
	// WriteFields applies the whole batch or none of it.
	WriteFields(ctx context.Context, id string, updates []models.FieldUpdate) error
	AdvanceStage(ctx context.Context, id, toStage string) error
}

// Finder is implemented by pages that can search opportunities.
type Finder interface {
	FindOpportunities(ctx context.Context, query string, limit int) ([]models.OpportunityState, error)
}

// Creator is implemented by pages that can create opportunities.
type Creator interface {
	CreateOpportunity(ctx context.Context, opp models.OpportunityState) (models.OpportunityState, error)
}

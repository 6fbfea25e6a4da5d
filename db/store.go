// ABOUTME: Store adapts the SQLite opportunity functions to the crm page contract
// ABOUTME: Lets the update pipeline run against a local database instead of a live CRM
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/harperreed/dealflow/crm"
	"github.com/harperreed/dealflow/models"
)

// Store implements crm.Page, crm.Finder and crm.Creator.
type Store struct {
	db *sql.DB
}

var (
	_ crm.Page    = (*Store)(nil)
	_ crm.Finder  = (*Store)(nil)
	_ crm.Creator = (*Store)(nil)
)

func NewStore(database *sql.DB) *Store {
	return &Store{db: database}
}

// ReadOpportunity resolves identifier as an ID first, then as a name.
func (s *Store) ReadOpportunity(ctx context.Context, identifier string) (models.OpportunityState, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.OpportunityState{}, crm.ErrNotFound
	}

	opp, err := GetOpportunity(ctx, s.db, identifier)
	if err != nil {
		return models.OpportunityState{}, err
	}
	if opp == nil {
		opp, err = FindOpportunityByName(ctx, s.db, identifier)
		if err != nil {
			return models.OpportunityState{}, err
		}
	}
	if opp == nil {
		return models.OpportunityState{}, fmt.Errorf("%q: %w", identifier, crm.ErrNotFound)
	}
	return opp.OpportunityState, nil
}

func (s *Store) WriteFields(ctx context.Context, id string, updates []models.FieldUpdate) error {
	return WriteFields(ctx, s.db, id, updates)
}

func (s *Store) AdvanceStage(ctx context.Context, id, toStage string) error {
	return AdvanceStage(ctx, s.db, id, toStage)
}

func (s *Store) FindOpportunities(ctx context.Context, query string, limit int) ([]models.OpportunityState, error) {
	opps, err := FindOpportunities(ctx, s.db, query, "", limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.OpportunityState, len(opps))
	for i, o := range opps {
		out[i] = o.OpportunityState
	}
	return out, nil
}

func (s *Store) CreateOpportunity(ctx context.Context, state models.OpportunityState) (models.OpportunityState, error) {
	opp := &Opportunity{OpportunityState: state}
	if err := CreateOpportunity(ctx, s.db, opp); err != nil {
		return models.OpportunityState{}, err
	}
	return opp.OpportunityState, nil
}

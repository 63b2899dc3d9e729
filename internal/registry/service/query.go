package service

import (
	"context"
	"strings"
	"time"

	"github.com/agentdir/agentdir/internal/registry/model"
	"github.com/agentdir/agentdir/internal/registry/repository"
	"go.uber.org/zap"
)

// Filter narrows a plain listing. Zero values are no-ops: an empty Status
// matches everything and Online=false disables the reachability filter.
type Filter struct {
	Status model.Status
	Online bool
	Limit  int
	Offset int
}

// Criteria narrows a search. All present criteria compose with logical
// AND; absent ones do not filter. Skill and Q match case-insensitive
// substrings, Tag and Capability match exactly (case-insensitive).
type Criteria struct {
	Skill      string
	Tag        string
	Q          string
	Capability string
	Status     model.Status
	Online     bool
	Limit      int
	Offset     int
}

// QueryService answers list and search requests by combining static
// records with liveness state. It is a pure read-only scan over the
// store; a single reference time per call keeps the online derivation
// consistent across all rows of one response.
type QueryService struct {
	store  repository.Store
	logger *zap.Logger
	nowFn  func() time.Time
}

// NewQueryService creates a QueryService.
func NewQueryService(store repository.Store, logger *zap.Logger) *QueryService {
	return &QueryService{store: store, logger: logger, nowFn: time.Now}
}

// SetNow replaces the reference clock for derived-online checks.
func (s *QueryService) SetNow(now func() time.Time) {
	s.nowFn = now
}

// List returns snapshots matching the filter, paginated.
func (s *QueryService) List(ctx context.Context, f Filter) ([]model.Snapshot, error) {
	return s.Search(ctx, Criteria{
		Status: f.Status,
		Online: f.Online,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

// Search scans the store and returns snapshots matching every present
// criterion. Pagination applies after filtering so pages are stable for a
// given store state.
func (s *QueryService) Search(ctx context.Context, c Criteria) ([]model.Snapshot, error) {
	if c.Status != "" && !c.Status.Valid() {
		return nil, &model.ErrValidation{
			Msg: "status filter must be one of online, offline, busy",
		}
	}

	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	results := make([]model.Snapshot, 0, len(entries))
	for _, e := range entries {
		if !matches(e, c, now) {
			continue
		}
		results = append(results, model.NewSnapshot(e.Record, e.Liveness, now))
	}

	return paginate(results, c.Limit, c.Offset), nil
}

// matches applies the AND-composed criteria to one entry.
func matches(e repository.Entry, c Criteria, now time.Time) bool {
	card := e.Record.Card

	if c.Skill != "" {
		needle := strings.ToLower(c.Skill)
		found := false
		for _, sk := range card.Skills {
			if strings.Contains(strings.ToLower(sk.ID), needle) ||
				strings.Contains(strings.ToLower(sk.Name), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if c.Tag != "" {
		found := false
		for _, sk := range card.Skills {
			for _, tag := range sk.Tags {
				if strings.EqualFold(tag, c.Tag) {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}

	if c.Q != "" {
		needle := strings.ToLower(c.Q)
		found := strings.Contains(strings.ToLower(card.Name), needle) ||
			strings.Contains(strings.ToLower(card.Description), needle)
		if !found {
			for _, sk := range card.Skills {
				if strings.Contains(strings.ToLower(sk.Name), needle) {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}

	if c.Capability != "" {
		value, ok := card.Capabilities.Named(c.Capability)
		if !ok || !value {
			return false
		}
	}

	if c.Status != "" && e.Liveness.Status != c.Status {
		return false
	}

	if c.Online && !e.Liveness.Online(now) {
		return false
	}

	return true
}

// paginate slices results by offset/limit with the handler-side defaults
// already applied; a non-positive limit means "no cap".
func paginate(results []model.Snapshot, limit, offset int) []model.Snapshot {
	if offset > 0 {
		if offset >= len(results) {
			return []model.Snapshot{}
		}
		results = results[offset:]
	}
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

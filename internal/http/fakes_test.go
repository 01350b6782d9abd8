package http

import (
	"context"
	"sync"
	"time"

	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"github.com/jmehdipour/journal-gateway/internal/webhook"
	"github.com/jmoiron/sqlx"
)

type fakeTeams struct {
	mu      sync.Mutex
	teams   map[string]model.Team
	err     error
	lookups int
}

func (f *fakeTeams) GetByID(_ context.Context, id string) (*model.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.teams[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeTeams) GetAllowedDomains(_ context.Context, id string) (model.StringList, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	t, ok := f.teams[id]
	return t.AllowedDomains, ok, nil
}

func (f *fakeTeams) Upsert(_ context.Context, t model.Team) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teams[t.ID] = t
	return nil
}

type fakeSubs struct {
	mu      sync.Mutex
	subs    map[string]model.Subscription
	lookups int
}

func (f *fakeSubs) FindActive(_ context.Context, teamID, ref, sku string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	var best *model.Subscription
	for _, s := range f.subs {
		if s.TeamID != teamID || s.TeamUserReferenceID != ref || s.APIProductSKU != sku || !s.Active(time.Now()) {
			continue
		}
		if best == nil || s.CreatedAt.After(best.CreatedAt) {
			cp := s
			best = &cp
		}
	}
	return best, nil
}

func (f *fakeSubs) GetByID(_ context.Context, id string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeSubs) IncrementUsage(_ context.Context, id string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.RequestsConsumed++
	f.subs[id] = s
	return &s, nil
}

func (f *fakeSubs) MarkNotified(context.Context, *sqlx.Tx, string, time.Time) (bool, error) {
	return false, nil
}

func (f *fakeSubs) Insert(_ context.Context, s model.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[s.ID] = s
	return nil
}

func (f *fakeSubs) consumed(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[id].RequestsConsumed
}

// fakeUsage charges straight into fakeSubs and counts calls.
type fakeUsage struct {
	subs  *fakeSubs
	mu    sync.Mutex
	calls int
}

func (u *fakeUsage) IncrementUsage(ctx context.Context, id string) (*model.Subscription, error) {
	u.mu.Lock()
	u.calls++
	u.mu.Unlock()
	return u.subs.IncrementUsage(ctx, id)
}

func (u *fakeUsage) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []model.JournalEntry
}

func (f *fakeJournal) Insert(_ context.Context, e model.JournalEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

type fakeLogs struct {
	mu   sync.Mutex
	rows []model.APIProductRequestLog
}

func (f *fakeLogs) Insert(_ context.Context, l model.APIProductRequestLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, l)
	return nil
}

func (f *fakeLogs) ListByTeam(_ context.Context, teamID, ref string, _, _ int) ([]model.APIProductRequestLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.APIProductRequestLog
	for _, r := range f.rows {
		if r.TeamID == teamID && (ref == "" || r.TeamUserReferenceID == ref) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLogs) all() []model.APIProductRequestLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.APIProductRequestLog(nil), f.rows...)
}

type fakeProcessor struct {
	res   webhook.Result
	err   error
	calls int
}

func (p *fakeProcessor) ProcessQueue(context.Context) (webhook.Result, error) {
	p.calls++
	return p.res, p.err
}

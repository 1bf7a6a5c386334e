package aggregation_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"civic/internal/civic/models"
	"civic/internal/geo/providers"
	"civic/internal/quality"
	"civic/pkg/domain"
)

var now = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

// fakeGeo answers from a fixed table and counts calls. When gate is set every
// call blocks until it is closed or ctx ends; abandoned counts the latter.
type fakeGeo struct {
	candidates map[domain.ZipCode]models.PlaceCandidate
	gate       chan struct{}
	calls      atomic.Int32
	abandoned  atomic.Int32
}

func (g *fakeGeo) Resolve(ctx context.Context, zip domain.ZipCode) (providers.Resolution, error) {
	g.calls.Add(1)
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			g.abandoned.Add(1)
			return providers.Resolution{}, models.Unresolved(ctx.Err())
		}
	}
	c, ok := g.candidates[zip]
	if !ok {
		return providers.Resolution{}, models.Unresolved(errors.New("no provider knows this zip"))
	}
	return providers.Resolution{Candidate: c}, nil
}

type levelBehaviour struct {
	delay     time.Duration
	ignoreCtx bool
	err       error
}

// fakeDirectory serves rosters per (level, district). Behaviour can be set per
// level to simulate slow or failing sources.
type fakeDirectory struct {
	mu        sync.Mutex
	rosters   map[domain.Level]map[string][]models.Representative
	behaviour map[domain.Level]levelBehaviour
	calls     map[string]int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		rosters:   make(map[domain.Level]map[string][]models.Representative),
		behaviour: make(map[domain.Level]levelBehaviour),
		calls:     make(map[string]int),
	}
}

func (d *fakeDirectory) add(reps ...models.Representative) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range reps {
		if d.rosters[r.Level] == nil {
			d.rosters[r.Level] = make(map[string][]models.Representative)
		}
		d.rosters[r.Level][r.DistrictID] = append(d.rosters[r.Level][r.DistrictID], r)
	}
}

// addTo files rep under a district regardless of what the record claims.
func (d *fakeDirectory) addTo(level domain.Level, districtID string, rep models.Representative) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rosters[level] == nil {
		d.rosters[level] = make(map[string][]models.Representative)
	}
	d.rosters[level][districtID] = append(d.rosters[level][districtID], rep)
}

func (d *fakeDirectory) set(level domain.Level, b levelBehaviour) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.behaviour[level] = b
}

func (d *fakeDirectory) GetByDistrict(ctx context.Context, level domain.Level, districtID string) ([]models.Representative, error) {
	d.mu.Lock()
	d.calls[string(level)+"/"+districtID]++
	b := d.behaviour[level]
	reps := append([]models.Representative{}, d.rosters[level][districtID]...)
	d.mu.Unlock()

	if b.delay > 0 {
		if b.ignoreCtx {
			time.Sleep(b.delay)
		} else {
			select {
			case <-time.After(b.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	return reps, nil
}

func (d *fakeDirectory) totalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		n += c
	}
	return n
}

func (d *fakeDirectory) callsFor(level domain.Level, districtID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[string(level)+"/"+districtID]
}

type recordingPublisher struct {
	mu   sync.Mutex
	rejs []quality.Rejection
}

func (p *recordingPublisher) Publish(_ context.Context, rej quality.Rejection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejs = append(p.rejs, rej)
	return nil
}

func (p *recordingPublisher) rejections() []quality.Rejection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]quality.Rejection(nil), p.rejs...)
}

func candidate(zip, city, county, state string) models.PlaceCandidate {
	return models.PlaceCandidate{
		ZipCode:    domain.ZipCode(zip),
		City:       city,
		County:     county,
		State:      state,
		ProviderID: "google",
		Source:     "google",
		Confidence: 0.95,
	}
}

func rep(id, name string, level domain.Level, chamber domain.Chamber, districtID, phone string) models.Representative {
	return models.Representative{
		ID:         id,
		Name:       name,
		Level:      level,
		Chamber:    chamber,
		DistrictID: districtID,
		Contact: models.Contact{
			Phone: phone,
		},
		Provenance:     models.Provenance{Source: "official-roster", Confidence: 0.95},
		LastVerifiedAt: now.Add(-72 * time.Hour),
	}
}

// sacramentoRoster covers every district the crosswalk assigns to 95814 and
// 95608.
func sacramentoRoster() []models.Representative {
	return []models.Representative{
		rep("fed-ca-sen-padilla", "Alex Padilla", domain.LevelFederal, domain.ChamberSenate, "CA", "(202) 224-3553"),
		rep("fed-ca-sen-schiff", "Adam Schiff", domain.LevelFederal, domain.ChamberSenate, "CA", "(202) 224-3841"),
		rep("fed-ca-07-matsui", "Doris Matsui", domain.LevelFederal, domain.ChamberHouse, "CA-07", "(202) 225-7163"),
		rep("fed-ca-06-bera", "Ami Bera", domain.LevelFederal, domain.ChamberHouse, "CA-06", "(202) 225-5716"),
		rep("st-ca-sd-08-ashby", "Angelique Ashby", domain.LevelState, domain.ChamberUpper, "CA-SD-08", "(916) 651-4008"),
		rep("st-ca-sd-06-niello", "Roger Niello", domain.LevelState, domain.ChamberUpper, "CA-SD-06", "(916) 651-4006"),
		rep("st-ca-ad-07-hoover", "Josh Hoover", domain.LevelState, domain.ChamberLower, "CA-AD-07", "(916) 319-2007"),
		rep("st-ca-ad-08-patterson", "Jim Patterson", domain.LevelState, domain.ChamberLower, "CA-AD-08", "(916) 319-2008"),
		rep("cty-sac-d1-serna", "Phil Serna", domain.LevelCounty, domain.ChamberSupervisor, "sacramento-county-d1", "(916) 874-5481"),
		rep("cty-sac-d3-desmond", "Rich Desmond", domain.LevelCounty, domain.ChamberSupervisor, "sacramento-county-d3", "(916) 874-5471"),
		rep("mun-sac-mayor", "Kevin McCarty", domain.LevelMunicipal, domain.ChamberExecutive, "sacramento-ca", "(916) 808-5300"),
		rep("mun-sac-d4-valenzuela", "Katie Valenzuela", domain.LevelMunicipal, domain.ChamberCouncil, "sacramento-ca-d4", "(916) 808-7004"),
		rep("mun-sac-d1-kaplan", "Lisa Kaplan", domain.LevelMunicipal, domain.ChamberCouncil, "sacramento-ca-d1", "(916) 808-7001"),
	}
}

func ids(reps []models.Representative) []string {
	out := make([]string, 0, len(reps))
	for _, r := range reps {
		out = append(out, r.ID)
	}
	return out
}

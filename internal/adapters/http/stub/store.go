package stub

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/okian/credash/internal/domain/model"
)

// ModelVersion tags every generated score.
const ModelVersion = "stub-linear-1.0"

const (
	scoreFloor = 300
	scoreCeil  = 900
	topDrivers = 8
)

// Issuer is a rated entity with the fundamentals its score is derived from.
type Issuer struct {
	ID         model.ID `json:"id"`
	Name       string   `json:"name"`
	AssetClass string   `json:"asset_class"`

	revenue   float64
	debt      float64
	cash      float64
	sentiment float64
}

// Score is one stored score with its attributions.
type Score struct {
	ID           model.ID
	IssuerID     model.ID
	Value        float64
	TS           time.Time
	ModelVersion string
	Drivers      []model.DriverExplanation
}

var seedIssuers = []Issuer{
	{Name: "ABC Bank", AssetClass: "Financials", revenue: 1200, debt: 300, cash: 200, sentiment: 0.35},
	{Name: "XYZ Steel", AssetClass: "Materials", revenue: 900, debt: 500, cash: 100, sentiment: -0.22},
	{Name: "Northwind Energy", AssetClass: "Energy", revenue: 1500, debt: 900, cash: 250, sentiment: 0.05},
	{Name: "Contoso Health", AssetClass: "Healthcare", revenue: 800, debt: 200, cash: 300, sentiment: 0.2},
	{Name: "Fabrikam Retail", AssetClass: "Consumer", revenue: 600, debt: 450, cash: 60, sentiment: -0.1},
	{Name: "Tailspin Air", AssetClass: "Industrials", revenue: 1100, debt: 1000, cash: 90, sentiment: -0.3},
}

// Store is an in-memory score database. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	rng     *rand.Rand
	now     func() time.Time
	issuers []*Issuer
	scores  []Score
	byID    map[model.ID]int
	nextID  model.ID
}

// NewStore seeds n issuers (at least one) and scores each once.
func NewStore(n int, seed int64, now func() time.Time) *Store {
	if n < 1 {
		n = 1
	}
	if now == nil {
		now = time.Now
	}
	s := &Store{
		rng:  rand.New(rand.NewSource(seed)), //nolint:gosec // synthetic data
		now:  now,
		byID: make(map[model.ID]int),
	}
	for i := 0; i < n; i++ {
		var iss Issuer
		if i < len(seedIssuers) {
			iss = seedIssuers[i]
		} else {
			iss = Issuer{
				Name:       fmt.Sprintf("Issuer %d", i+1),
				AssetClass: seedIssuers[i%len(seedIssuers)].AssetClass,
				revenue:    500 + s.rng.Float64()*1000,
				debt:       100 + s.rng.Float64()*800,
				cash:       50 + s.rng.Float64()*250,
				sentiment:  s.rng.Float64() - 0.5,
			}
		}
		iss.ID = model.ID(i + 1)
		s.issuers = append(s.issuers, &iss)
	}
	s.Generate()
	return s
}

// Generate moves every issuer's fundamentals a little and records a new
// score for each. It returns the number of scores added.
func (s *Store) Generate() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	for _, iss := range s.issuers {
		iss.revenue = math.Max(1, iss.revenue*(1+s.rng.NormFloat64()*0.02))
		iss.debt = math.Max(0, iss.debt*(1+s.rng.NormFloat64()*0.03))
		iss.cash = math.Max(0, iss.cash*(1+s.rng.NormFloat64()*0.05))
		iss.sentiment = clamp(iss.sentiment+s.rng.NormFloat64()*0.05, -1, 1)
		s.addLocked(iss, ts)
	}
	return len(s.issuers)
}

func (s *Store) addLocked(iss *Issuer, ts time.Time) {
	s.nextID++
	value, drivers := rate(iss)
	s.byID[s.nextID] = len(s.scores)
	s.scores = append(s.scores, Score{
		ID:           s.nextID,
		IssuerID:     iss.ID,
		Value:        value,
		TS:           ts,
		ModelVersion: ModelVersion,
		Drivers:      drivers,
	})
}

// rate scores an issuer with a linear model. Each attribution is its term's
// contribution relative to a reference issuer, so while nothing is clamped
// the attributions sum to the score minus base.
func rate(iss *Issuer) (float64, []model.DriverExplanation) {
	const (
		base       = 700.0
		refDTR     = 0.4
		refCash    = 0.5
		refRevenue = 1000.0
		refDebt    = 500.0
		wDTR       = -200.0
		wCash      = 150.0
		wSent      = 50.0
		wNet       = 0.005
		maxCash    = 3.0
	)
	dtr := iss.debt / iss.revenue
	cashRatio := iss.cash / (iss.debt + 1e-6)

	drivers := []model.DriverExplanation{
		{Feature: "debt_to_revenue", Value: dtr, Shap: wDTR * (dtr - refDTR)},
		{Feature: "cash_ratio", Value: cashRatio, Shap: wCash * (math.Min(cashRatio, maxCash) - refCash)},
		{Feature: "news_sentiment", Value: iss.sentiment, Shap: wSent * iss.sentiment},
		{Feature: "revenue", Value: iss.revenue, Shap: wNet * (iss.revenue - refRevenue)},
		{Feature: "debt", Value: iss.debt, Shap: -wNet * (iss.debt - refDebt)},
		{Feature: "cash", Value: iss.cash, Shap: 0},
	}
	score := base
	for i := range drivers {
		score += drivers[i].Shap
		drivers[i].Value = round(drivers[i].Value, 4)
		drivers[i].Shap = round(drivers[i].Shap, 4)
	}
	return round(clamp(score, scoreFloor, scoreCeil), 2), drivers
}

// Issuers lists all issuers by id.
func (s *Store) Issuers() []Issuer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Issuer, 0, len(s.issuers))
	for _, iss := range s.issuers {
		out = append(out, *iss)
	}
	return out
}

// Issuer returns one issuer.
func (s *Store) Issuer(id model.ID) (Issuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iss, err := s.issuerLocked(id)
	if err != nil {
		return Issuer{}, err
	}
	return *iss, nil
}

func (s *Store) issuerLocked(id model.ID) (*Issuer, error) {
	if id < 1 || int(id) > len(s.issuers) {
		return nil, fmt.Errorf("%w: issuer %d", ErrNotFound, id)
	}
	return s.issuers[id-1], nil
}

// LatestRow is the /scores payload row.
type LatestRow struct {
	model.ScoreRecord
	ModelVersion string `json:"model_version"`
}

// Latest returns the newest score per issuer, newest first. An empty
// assetClass matches every issuer.
func (s *Store) Latest(assetClass string) []LatestRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[model.ID]bool, len(s.issuers))
	var out []LatestRow
	for i := len(s.scores) - 1; i >= 0; i-- {
		sc := s.scores[i]
		if seen[sc.IssuerID] {
			continue
		}
		iss := s.issuers[sc.IssuerID-1]
		if assetClass != "" && iss.AssetClass != assetClass {
			continue
		}
		seen[sc.IssuerID] = true
		out = append(out, LatestRow{
			ScoreRecord: model.ScoreRecord{
				ScoreID:    sc.ID,
				IssuerID:   sc.IssuerID,
				Issuer:     iss.Name,
				AssetClass: iss.AssetClass,
				Score:      sc.Value,
				TS:         model.NewTimestamp(sc.TS),
			},
			ModelVersion: sc.ModelVersion,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.After(out[j].TS.Time) })
	return out
}

// History returns an issuer's scores, oldest first.
func (s *Store) History(issuerID model.ID) ([]model.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.issuerLocked(issuerID); err != nil {
		return nil, err
	}
	out := []model.HistoryEntry{}
	for _, sc := range s.scores {
		if sc.IssuerID == issuerID {
			out = append(out, model.HistoryEntry{ID: sc.ID, TS: model.NewTimestamp(sc.TS), Score: sc.Value})
		}
	}
	return out, nil
}

// Explain returns the top attributions of a score by |shap|.
func (s *Store) Explain(scoreID model.ID) ([]model.DriverExplanation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[scoreID]
	if !ok {
		return nil, fmt.Errorf("%w: score %d", ErrNotFound, scoreID)
	}
	out := append([]model.DriverExplanation(nil), s.scores[idx].Drivers...)
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Shap), math.Abs(out[j].Shap)
		if ai != aj {
			return ai > aj
		}
		return out[i].Feature < out[j].Feature
	})
	if len(out) > topDrivers {
		out = out[:topDrivers]
	}
	return out, nil
}

// Count returns the number of stored scores.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scores)
}

// Run calls Generate every tick until ctx ends.
func (s *Store) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		return
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Generate()
		}
	}
}

func clamp(v, lo, hi float64) float64 { return math.Min(hi, math.Max(lo, v)) }

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

package services

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/inaiurai/marketplace/internal/models"
)

const defaultMatchLimit = 5

// ProfileSource is the minimal interface required for matching.
type ProfileSource interface {
	FindAvailableTaskers(ctx context.Context, category, city string) ([]*models.TaskerProfile, error)
}

// Matcher ranks available taskers for a task.
type Matcher struct {
	Profiles ProfileSource
}

// NewMatcher returns a new Matcher.
func NewMatcher(profiles ProfileSource) *Matcher {
	return &Matcher{Profiles: profiles}
}

// taskerCandidate holds a profile and the normalised inputs to its score.
type taskerCandidate struct {
	profile    *models.TaskerProfile
	rating     float64 // 0–1 (0.5 when unrated)
	jobs       int
	rate       int64   // 0 when the tasker has no hourly rate
	distanceKm float64 // -1 when either side has no coordinates
	sameCity   bool
}

// buildCandidates drops taskers priced above an hourly task's estimate and
// collects the scoring fields for the rest.
func buildCandidates(profiles []*models.TaskerProfile, task *models.Task) []taskerCandidate {
	var candidates []taskerCandidate
	for _, p := range profiles {
		if p.UserID == task.ClientID {
			continue
		}
		var rate int64
		if p.HourlyRate != nil {
			rate = *p.HourlyRate
		}
		if task.PricingModel == models.PricingHourly && task.PriceAmount != nil && rate > *task.PriceAmount {
			continue
		}
		rating := 0.5
		if p.Rating != nil {
			rating = math.Min(*p.Rating/5, 1)
		}
		dist := -1.0
		if p.Lat != nil && p.Lng != nil && task.Location.Lat != nil && task.Location.Lng != nil {
			dist = haversineKm(*p.Lat, *p.Lng, *task.Location.Lat, *task.Location.Lng)
		}
		candidates = append(candidates, taskerCandidate{
			profile:    p,
			rating:     rating,
			jobs:       p.CompletedJobs,
			rate:       rate,
			distanceKm: dist,
			sameCity:   strings.EqualFold(p.City, task.Location.City),
		})
	}
	return candidates
}

// score weighs rating, experience, price and proximity. Each term is
// normalised against the best value in the candidate set.
func score(candidates []taskerCandidate) []float64 {
	maxJobs, maxRate, maxDist := 1, int64(1), 1.0
	for _, c := range candidates {
		maxJobs = max(maxJobs, c.jobs)
		maxRate = max(maxRate, c.rate)
		maxDist = math.Max(maxDist, c.distanceKm)
	}
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		jobsNorm := float64(c.jobs) / float64(maxJobs)
		priceNorm := 0.5
		if c.rate > 0 {
			priceNorm = 1.0 - float64(c.rate)/float64(maxRate)
		}
		distNorm := 0.5
		if c.distanceKm >= 0 {
			distNorm = 1.0 - c.distanceKm/maxDist
		}
		city := 0.0
		if c.sameCity {
			city = 1
		}
		scores[i] = c.rating*0.35 + jobsNorm*0.15 + priceNorm*0.20 + distNorm*0.20 + city*0.10
	}
	return scores
}

// Rank returns up to limit candidates for the task, best first.
func (m *Matcher) Rank(ctx context.Context, task *models.Task, limit int) ([]models.TaskCandidate, error) {
	if limit <= 0 {
		limit = defaultMatchLimit
	}
	profiles, err := m.Profiles.FindAvailableTaskers(ctx, task.Category, task.Location.City)
	if err != nil {
		return nil, err
	}
	candidates := buildCandidates(profiles, task)
	scores := score(candidates)
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	out := make([]models.TaskCandidate, 0, len(order))
	for _, i := range order {
		out = append(out, models.TaskCandidate{
			TaskID:   task.ID,
			TaskerID: candidates[i].profile.UserID,
			Score:    math.Round(scores[i]*1000) / 1000,
		})
	}
	return out, nil
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

package donor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"vienlink/internal/model"
	"vienlink/internal/repository"
)

const (
	earthRadiusKm = 6371.0

	// Donors must wait this long between donations.
	donationCooldown = 90 * 24 * time.Hour

	maxResults = 20
)

// Match is one nearby eligible donor, distance in kilometers rounded to one
// decimal place.
type Match struct {
	Donor      model.Donor `json:"donor"`
	DistanceKm float64     `json:"distance_km"`
}

// Matcher is a read-only geospatial query used when stock runs low. It never
// mutates donor records.
type Matcher struct {
	repo repository.Repository
}

func NewMatcher(repo repository.Repository) Matcher {
	return Matcher{repo: repo}
}

// FindNearby returns up to 20 eligible donors of the given group within
// radiusKm of the point, ordered by ascending great-circle distance. Eligible
// means the donor is flagged eligible and has not donated within the last 90
// days (or has never donated).
func (m *Matcher) FindNearby(ctx context.Context, group model.BloodGroup, lat, lon, radiusKm float64) ([]Match, error) {
	if !group.Valid() {
		return nil, fmt.Errorf("%w: unknown blood group %q", model.ErrInvalidInput, group)
	}
	if err := validateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", model.ErrInvalidInput)
	}

	donors, err := m.repo.ListDonorsByGroup(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("failed to list donors: %w", err)
	}

	cutoff := time.Now().Add(-donationCooldown)
	var matches []Match
	for _, d := range donors {
		if !d.Eligible {
			continue
		}
		if d.LastDonationDate != nil && d.LastDonationDate.After(cutoff) {
			continue
		}
		if d.Latitude == nil || d.Longitude == nil {
			continue
		}
		dist := haversineKm(lat, lon, *d.Latitude, *d.Longitude)
		if dist > radiusKm {
			continue
		}
		matches = append(matches, Match{
			Donor:      d,
			DistanceKm: math.Round(dist*10) / 10,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].DistanceKm < matches[j].DistanceKm })
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}

func validateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return fmt.Errorf("%w: missing coordinates", model.ErrInvalidInput)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: coordinates out of range", model.ErrInvalidInput)
	}
	return nil
}

// haversineKm computes great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

package datex

import (
	"strings"

	"github.com/umahmood/haversine"
)

// Valencia city center, used for the coordinate fallback when a record
// carries no administrative names.
const (
	ValenciaLat = 39.4699
	ValenciaLon = -0.3763

	// Radius covering the Comunitat Valenciana from the city center.
	regionRadiusKm = 150.0
)

// Community and province spellings seen in the DGT Spanish location
// extension. Matching is case-insensitive on the trimmed value.
var valencianCommunityAliases = map[string]bool{
	"comunitat valenciana": true,
	"comunidad valenciana": true,
	"c. valenciana":        true,
	"valencia":             true,
	"valenciana":           true,
	"c.valenciana":         true,
	"com. valenciana":      true,
}

var valencianProvinces = map[string]bool{
	"valencia":              true,
	"valència":              true,
	"valencia/valència":     true,
	"alicante":              true,
	"alacant":               true,
	"alicante/alacant":      true,
	"castellón":             true,
	"castelló":              true,
	"castellón/castelló":    true,
	"castellón de la plana": true,
	"castelló de la plana":  true,
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValencianCommunityName reports whether s is a known spelling of the
// Comunitat Valenciana.
func ValencianCommunityName(s string) bool {
	return valencianCommunityAliases[normalizeName(s)]
}

// ValencianProvinceName reports whether s names one of its provinces.
func ValencianProvinceName(s string) bool {
	return valencianProvinces[normalizeName(s)]
}

// InValencianCommunity reports whether a record belongs to the
// Comunitat Valenciana. The administrative names from the Spanish
// extension decide when present; otherwise coordinates within the
// region radius of Valencia decide; records with neither are excluded.
func InValencianCommunity(rec SituationRecord) bool {
	if rec.Location == nil {
		return false
	}
	for _, p := range []*Point{rec.Location.From, rec.Location.To} {
		if p == nil {
			continue
		}
		if valencianCommunityAliases[normalizeName(p.AutonomousCommunity)] {
			return true
		}
		if valencianProvinces[normalizeName(p.Province)] {
			return true
		}
	}
	// Named but elsewhere: don't fall through to the radius check.
	if hasAdminNames(rec.Location.From) || hasAdminNames(rec.Location.To) {
		return false
	}
	for _, p := range []*Point{rec.Location.From, rec.Location.To} {
		if p != nil && p.HasCoords && WithinValenciaRadius(p.Lat, p.Lon, regionRadiusKm) {
			return true
		}
	}
	return false
}

func hasAdminNames(p *Point) bool {
	return p != nil && (p.AutonomousCommunity != "" || p.Province != "")
}

// LikelyValencian is the inclusive variant used when cleaning
// datasets: a record with no administrative names cannot be ruled out,
// so it is kept rather than lost. Only records naming another region
// are rejected.
func LikelyValencian(rec SituationRecord) bool {
	if rec.Location == nil {
		return true
	}
	for _, p := range []*Point{rec.Location.From, rec.Location.To} {
		if p == nil {
			continue
		}
		if valencianCommunityAliases[normalizeName(p.AutonomousCommunity)] {
			return true
		}
		if valencianProvinces[normalizeName(p.Province)] {
			return true
		}
	}
	if hasAdminNames(rec.Location.From) || hasAdminNames(rec.Location.To) {
		return false
	}
	return true
}

// FilterLikelyValencian keeps the records that are, or could be, in
// the Comunitat Valenciana.
func FilterLikelyValencian(records []SituationRecord) []SituationRecord {
	var kept []SituationRecord
	for _, rec := range records {
		if LikelyValencian(rec) {
			kept = append(kept, rec)
		}
	}
	return kept
}

// WithinValenciaRadius reports whether a coordinate lies within
// radiusKm of the Valencia city center.
func WithinValenciaRadius(lat, lon, radiusKm float64) bool {
	_, km := haversine.Distance(
		haversine.Coord{Lat: ValenciaLat, Lon: ValenciaLon},
		haversine.Coord{Lat: lat, Lon: lon},
	)
	return km <= radiusKm
}

// FilterValencian keeps only the records in the Comunitat Valenciana.
func FilterValencian(records []SituationRecord) []SituationRecord {
	var kept []SituationRecord
	for _, rec := range records {
		if InValencianCommunity(rec) {
			kept = append(kept, rec)
		}
	}
	return kept
}

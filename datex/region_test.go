package datex

import "testing"

func recordWithPoint(p *Point) SituationRecord {
	return SituationRecord{Location: &Location{From: p}}
}

func TestInValencianCommunityByName(t *testing.T) {
	tests := []struct {
		name      string
		community string
		province  string
		want      bool
	}{
		{"official name", "Comunitat Valenciana", "", true},
		{"castilian name", "Comunidad Valenciana", "", true},
		{"abbreviated", "C. Valenciana", "", true},
		{"mixed case", "COMUNITAT VALENCIANA", "", true},
		{"province bilingual", "", "Valencia/València", true},
		{"province alicante", "", "Alacant", true},
		{"province castellon", "", "Castellón", true},
		{"madrid", "Comunidad de Madrid", "", false},
		{"andalucia province", "", "Sevilla", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := recordWithPoint(&Point{
				AutonomousCommunity: tt.community,
				Province:            tt.province,
			})
			if got := InValencianCommunity(rec); got != tt.want {
				t.Errorf("InValencianCommunity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInValencianCommunityRadiusFallback(t *testing.T) {
	t.Run("sagunto inside radius", func(t *testing.T) {
		rec := recordWithPoint(&Point{Lat: 39.6766, Lon: -0.2726, HasCoords: true})
		if !InValencianCommunity(rec) {
			t.Error("point 25km from the city center should match")
		}
	})

	t.Run("madrid outside radius", func(t *testing.T) {
		rec := recordWithPoint(&Point{Lat: 40.4168, Lon: -3.7038, HasCoords: true})
		if InValencianCommunity(rec) {
			t.Error("Madrid is ~300km away and should not match")
		}
	})

	t.Run("named elsewhere ignores coordinates", func(t *testing.T) {
		// Admin names win over the radius check
		rec := recordWithPoint(&Point{
			Lat: 39.48, Lon: -0.40, HasCoords: true,
			AutonomousCommunity: "Comunidad de Madrid",
		})
		if InValencianCommunity(rec) {
			t.Error("a record named in another community must be excluded")
		}
	})

	t.Run("no location", func(t *testing.T) {
		if InValencianCommunity(SituationRecord{}) {
			t.Error("record without location should be excluded")
		}
	})
}

func TestWithinValenciaRadius(t *testing.T) {
	// The city center is distance zero from itself
	if !WithinValenciaRadius(ValenciaLat, ValenciaLon, 1) {
		t.Error("center should be within any radius")
	}
	// Castelló de la Plana, ~65km north
	if !WithinValenciaRadius(39.9864, -0.0513, 150) {
		t.Error("Castelló should be within 150km")
	}
	if WithinValenciaRadius(39.9864, -0.0513, 10) {
		t.Error("Castelló should not be within 10km")
	}
}

func TestFilterValencian(t *testing.T) {
	records := []SituationRecord{
		recordWithPoint(&Point{AutonomousCommunity: "Comunitat Valenciana"}),
		recordWithPoint(&Point{AutonomousCommunity: "Cataluña"}),
		recordWithPoint(&Point{Lat: 39.5, Lon: -0.4, HasCoords: true}),
		{},
	}

	kept := FilterValencian(records)
	if len(kept) != 2 {
		t.Fatalf("kept %d records, want 2", len(kept))
	}
}

func TestLikelyValencian(t *testing.T) {
	tests := []struct {
		name string
		rec  SituationRecord
		want bool
	}{
		{"no location", SituationRecord{}, true},
		{"named valencian", recordWithPoint(&Point{Province: "València"}), true},
		{"named elsewhere", recordWithPoint(&Point{AutonomousCommunity: "Galicia"}), false},
		{"coords only", recordWithPoint(&Point{Lat: 40.41, Lon: -3.70, HasCoords: true}), true},
		{"empty point", recordWithPoint(&Point{}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LikelyValencian(tt.rec); got != tt.want {
				t.Errorf("LikelyValencian() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterLikelyValencian(t *testing.T) {
	records := []SituationRecord{
		recordWithPoint(&Point{Province: "Alacant"}),
		recordWithPoint(&Point{Province: "Sevilla"}),
		{},
	}
	if kept := FilterLikelyValencian(records); len(kept) != 2 {
		t.Fatalf("kept %d records, want 2", len(kept))
	}
}

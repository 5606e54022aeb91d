package timezones

import (
	"testing"

	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
)

func TestCuratedZonesLoad(t *testing.T) {
	if !calendar.ValidTimezone("America/New_York") {
		t.Skip("tzdata unavailable")
	}
	seen := map[string]bool{}
	for _, z := range All() {
		if seen[z.ID] {
			t.Errorf("zone %s listed twice", z.ID)
		}
		seen[z.ID] = true
		if z.Label == "" || z.Region == "" {
			t.Errorf("zone %s missing label or region", z.ID)
		}
		if !calendar.ValidTimezone(z.ID) {
			t.Errorf("zone %s does not load", z.ID)
		}
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"America/New_York", "Eastern Time (US & Canada)"},
		{"Asia/Kolkata", "India Standard Time"},
		{"America/Boise", "America/Boise"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Label(tt.id); got != tt.want {
			t.Errorf("Label(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
	if !Curated("UTC") || Curated("Mars/Base") {
		t.Error("Curated() mismatch")
	}
}

func TestGroups(t *testing.T) {
	gs := Groups()
	if len(gs) == 0 {
		t.Fatal("Groups() returned nothing")
	}

	total := 0
	for i, g := range gs {
		if i > 0 && gs[i-1].Region >= g.Region {
			t.Errorf("regions not sorted: %q before %q", gs[i-1].Region, g.Region)
		}
		for j := 1; j < len(g.Zones); j++ {
			if g.Zones[j-1].Label > g.Zones[j].Label {
				t.Errorf("%s zones not sorted at %d", g.Region, j)
			}
		}
		total += len(g.Zones)
	}
	if total != len(All()) {
		t.Errorf("grouped %d zones, want %d", total, len(All()))
	}
}

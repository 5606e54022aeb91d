// Package timezones holds the curated zone list offered by the settings
// picker. Any IANA zone is still accepted on save; this list only drives
// the suggestions and their labels.
package timezones

import (
	"sort"
	"sync"
)

// Zone is one picker entry.
type Zone struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Region string `json:"region"`
}

// ZoneGroup is a region heading with its zones sorted by label.
type ZoneGroup struct {
	Region string `json:"region"`
	Zones  []Zone `json:"zones"`
}

var curated = []Zone{
	{"UTC", "Coordinated Universal Time", "UTC"},

	{"America/Anchorage", "Alaska", "Americas"},
	{"America/Argentina/Buenos_Aires", "Buenos Aires", "Americas"},
	{"America/Bogota", "Bogotá", "Americas"},
	{"America/Chicago", "Central Time (US & Canada)", "Americas"},
	{"America/Denver", "Mountain Time (US & Canada)", "Americas"},
	{"America/Halifax", "Atlantic Time (Canada)", "Americas"},
	{"America/Los_Angeles", "Pacific Time (US & Canada)", "Americas"},
	{"America/Mexico_City", "Mexico City", "Americas"},
	{"America/New_York", "Eastern Time (US & Canada)", "Americas"},
	{"America/Phoenix", "Arizona", "Americas"},
	{"America/Sao_Paulo", "São Paulo", "Americas"},
	{"America/St_Johns", "Newfoundland", "Americas"},
	{"Pacific/Honolulu", "Hawaii", "Americas"},

	{"Europe/Amsterdam", "Amsterdam", "Europe"},
	{"Europe/Berlin", "Berlin", "Europe"},
	{"Europe/Istanbul", "Istanbul", "Europe"},
	{"Europe/Lisbon", "Lisbon", "Europe"},
	{"Europe/London", "London", "Europe"},
	{"Europe/Madrid", "Madrid", "Europe"},
	{"Europe/Moscow", "Moscow", "Europe"},
	{"Europe/Paris", "Paris", "Europe"},
	{"Europe/Warsaw", "Warsaw", "Europe"},

	{"Africa/Cairo", "Cairo", "Africa"},
	{"Africa/Johannesburg", "Johannesburg", "Africa"},
	{"Africa/Lagos", "Lagos", "Africa"},
	{"Africa/Nairobi", "Nairobi", "Africa"},

	{"Asia/Dubai", "Dubai", "Asia"},
	{"Asia/Hong_Kong", "Hong Kong", "Asia"},
	{"Asia/Jakarta", "Jakarta", "Asia"},
	{"Asia/Kathmandu", "Kathmandu", "Asia"},
	{"Asia/Kolkata", "India Standard Time", "Asia"},
	{"Asia/Seoul", "Seoul", "Asia"},
	{"Asia/Shanghai", "China Standard Time", "Asia"},
	{"Asia/Singapore", "Singapore", "Asia"},
	{"Asia/Tehran", "Tehran", "Asia"},
	{"Asia/Tokyo", "Tokyo", "Asia"},

	{"Australia/Adelaide", "Adelaide", "Pacific"},
	{"Australia/Perth", "Perth", "Pacific"},
	{"Australia/Sydney", "Sydney", "Pacific"},
	{"Pacific/Auckland", "Auckland", "Pacific"},
	{"Pacific/Chatham", "Chatham Islands", "Pacific"},
	{"Pacific/Kiritimati", "Kiritimati", "Pacific"},
}

var (
	byID = func() map[string]Zone {
		m := make(map[string]Zone, len(curated))
		for _, z := range curated {
			m[z.ID] = z
		}
		return m
	}()

	groupsOnce sync.Once
	groups     []ZoneGroup
)

// All returns the curated zones in declaration order.
func All() []Zone {
	out := make([]Zone, len(curated))
	copy(out, curated)
	return out
}

// Label returns the human-friendly label for an ID, or the ID itself if it
// is not curated.
func Label(id string) string {
	if z, ok := byID[id]; ok {
		return z.Label
	}
	return id
}

// Curated reports whether id is in the picker list.
func Curated(id string) bool {
	_, ok := byID[id]
	return ok
}

// Groups returns the zones grouped by region, regions and labels sorted.
// The result is shared; callers must not modify it.
func Groups() []ZoneGroup {
	groupsOnce.Do(func() {
		byRegion := make(map[string][]Zone)
		for _, z := range curated {
			byRegion[z.Region] = append(byRegion[z.Region], z)
		}

		out := make([]ZoneGroup, 0, len(byRegion))
		for region, zs := range byRegion {
			sort.SliceStable(zs, func(i, j int) bool { return zs[i].Label < zs[j].Label })
			out = append(out, ZoneGroup{Region: region, Zones: zs})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Region < out[j].Region })
		groups = out
	})
	return groups
}

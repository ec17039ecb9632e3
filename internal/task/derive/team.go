package derive

import (
	"strings"

	"taskdesk/internal/task/models"
	pstrings "taskdesk/pkg/platform/strings"
)

// TeamStats are the counters shown on the team page.
type TeamStats struct {
	Total  int `json:"total"`
	Admins int `json:"admins"`
	Staff  int `json:"staff"`
}

// FilterProfiles keeps profiles whose email or full name contains the query,
// ignoring case. An empty query keeps everything.
func FilterProfiles(profiles []models.Profile, query string) []models.Profile {
	q := strings.TrimSpace(query)
	out := make([]models.Profile, 0, len(profiles))
	for _, p := range profiles {
		if q == "" || pstrings.ContainsFold(&p.Email, q) || pstrings.ContainsFold(p.FullName, q) {
			out = append(out, p)
		}
	}
	return out
}

// ComputeTeamStats counts profiles by role.
func ComputeTeamStats(profiles []models.Profile) TeamStats {
	st := TeamStats{Total: len(profiles)}
	for _, p := range profiles {
		if p.IsAdmin() {
			st.Admins++
		} else {
			st.Staff++
		}
	}
	return st
}

// GroupByRole splits profiles into admins and staff, preserving order.
func GroupByRole(profiles []models.Profile) (admins, staff []models.Profile) {
	for _, p := range profiles {
		if p.IsAdmin() {
			admins = append(admins, p)
		} else {
			staff = append(staff, p)
		}
	}
	return admins, staff
}

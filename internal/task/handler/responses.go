package handler

import (
	"time"

	"taskdesk/internal/task/derive"
	"taskdesk/internal/task/models"
	"taskdesk/internal/task/policy"
	"taskdesk/internal/task/service"
	id "taskdesk/pkg/domain"
)

type taskResponse struct {
	models.Task
	Overdue      bool               `json:"overdue"`
	OverdueLabel string             `json:"overdue_label,omitempty"`
	Permissions  policy.Permissions `json:"permissions"`
}

func toTaskResponse(session *service.Session, t models.Task, now time.Time) taskResponse {
	return taskResponse{
		Task:         t,
		Overdue:      derive.IsOverdue(t, now),
		OverdueLabel: derive.OverdueLabel(t, now),
		Permissions:  session.Permissions(t),
	}
}

type listResponse struct {
	Profile models.Profile  `json:"profile"`
	Stats   derive.Stats    `json:"stats"`
	Tasks   []taskResponse  `json:"tasks"`
	Filters derive.Criteria `json:"filters"`
}

type assigneeOption struct {
	ID    id.ProfileID `json:"id"`
	Label string       `json:"label"`
	Role  id.Role      `json:"role"`
}

type assigneesResponse struct {
	Options       []assigneeOption `json:"options"`
	AllowUnassign bool             `json:"allow_unassign"`
}

type teamMember struct {
	models.Profile
	DisplayName   string `json:"display_name"`
	Initials      string `json:"initials"`
	IsSelf        bool   `json:"is_self"`
	CanChangeRole bool   `json:"can_change_role"`
}

type teamResponse struct {
	Admins []teamMember     `json:"admins"`
	Staff  []teamMember     `json:"staff"`
	Stats  derive.TeamStats `json:"stats"`
}

func toTeamResponse(team service.TeamView) teamResponse {
	member := func(p models.Profile) teamMember {
		self := p.ID == team.Self
		return teamMember{
			Profile:       p,
			DisplayName:   p.DisplayName(),
			Initials:      p.Initials(),
			IsSelf:        self,
			CanChangeRole: !self,
		}
	}
	resp := teamResponse{
		Admins: make([]teamMember, 0, len(team.Admins)),
		Staff:  make([]teamMember, 0, len(team.Staff)),
		Stats:  team.Stats,
	}
	for _, p := range team.Admins {
		resp.Admins = append(resp.Admins, member(p))
	}
	for _, p := range team.Staff {
		resp.Staff = append(resp.Staff, member(p))
	}
	return resp
}

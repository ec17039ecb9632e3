package service

import (
	"context"
	"errors"

	taskmodels "taskdesk/internal/task/models"
	"taskdesk/internal/task/ports"
	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/platform/sentinel"
	"taskdesk/pkg/requestcontext"
)

var _ ports.Identity = (*Service)(nil)

// CurrentUser returns the profile ID set by the auth middleware.
func (s *Service) CurrentUser(ctx context.Context) (id.ProfileID, bool) {
	profileID := requestcontext.UserID(ctx)
	return profileID, !profileID.IsNil()
}

// GetProfile reads through the profile cache. Cache failures fall back to
// the store.
func (s *Service) GetProfile(ctx context.Context, profileID id.ProfileID) (taskmodels.Profile, error) {
	if s.cache != nil {
		p, ok, err := s.cache.Get(ctx, profileID)
		if err != nil {
			s.logger.WarnContext(ctx, "profile cache read failed",
				"profile_id", profileID.String(),
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		} else if ok {
			return p, nil
		}
	}

	p, err := s.profiles.GetProfile(ctx, profileID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return taskmodels.Profile{}, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return taskmodels.Profile{}, dErrors.Wrap(err, dErrors.CodeRemoteFailure, "failed to load profile")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, p); err != nil {
			s.logger.WarnContext(ctx, "profile cache write failed",
				"profile_id", profileID.String(),
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
	return p, nil
}

// InvalidateProfile drops the cached copy after a role change.
func (s *Service) InvalidateProfile(ctx context.Context, profileID id.ProfileID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, profileID); err != nil {
		s.logger.WarnContext(ctx, "profile cache eviction failed",
			"profile_id", profileID.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

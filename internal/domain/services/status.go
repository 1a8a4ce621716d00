package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"civicpulse/internal/domain/models"
	"civicpulse/internal/infrastructure/database/repository"
	"civicpulse/pkg/logger"
)

// StatusService applies report status changes and their side effects
type StatusService struct {
	reports     ReportStore
	citizens    CitizenStore
	broadcaster *BroadcastEngine
	events      EventPublisher
	logger      *logger.Logger
}

// NewStatusService creates a new status service
func NewStatusService(reports ReportStore, citizens CitizenStore, broadcaster *BroadcastEngine, events EventPublisher, log *logger.Logger) *StatusService {
	return &StatusService{
		reports:     reports,
		citizens:    citizens,
		broadcaster: broadcaster,
		events:      publisherOrNoop(events),
		logger:      log.WithComponent("status"),
	}
}

// ChangeStatus moves a report to next. The primary record and department copy
// are written together. Repeating a change is a no-op that returns
// Changed=false and sends nothing. On a real change the citizen and the group
// of origin are told first, then acceptance alerts the report's area.
func (s *StatusService) ChangeStatus(ctx context.Context, id uuid.UUID, next models.ReportStatus, note, actor string) (*models.StatusChange, error) {
	var previous models.ReportStatus

	report, changed, err := s.reports.Mutate(ctx, id, func(r *models.Report) (bool, error) {
		previous = r.Status
		ok, err := r.Status.Transition(next)
		if err != nil || !ok {
			return false, err
		}
		r.Status = next
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to change status of report %s: %w", id, err)
	}

	change := &models.StatusChange{Report: report, Previous: previous, Changed: changed}
	if !changed {
		return change, nil
	}

	log := s.logger.WithReport(report.ID.String()).WithStage("status")
	log.Info().
		Str("from", string(previous)).
		Str("to", string(next)).
		Str("actor", actor).
		Msg("report status changed")

	// Notifications run to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if to := s.citizenAddress(ctx, log, report); to != "" {
		if err := s.broadcaster.Notify(ctx, to, citizenStatusMessage(report, note)); err != nil {
			log.Warn().Err(err).Str("to", to).Msg("failed to notify citizen")
		}
	}
	if report.GroupID != nil {
		if err := s.broadcaster.Notify(ctx, *report.GroupID, groupStatusMessage(report)); err != nil {
			log.Warn().Err(err).Str("group", *report.GroupID).Msg("failed to notify group")
		}
	}

	if next == models.ReportStatusAccepted {
		if area := report.InferredArea(); area != "" {
			result, err := s.broadcaster.Broadcast(ctx, models.BroadcastRequest{
				Area:       area,
				Message:    areaAlertMessage(report, area),
				Type:       models.BroadcastTypeVerification,
				Department: report.Department,
				Sender:     actor,
			})
			if err != nil {
				log.Error().Err(err).Str("area", area).Msg("area alert failed")
			} else {
				change.Reach = result.Attempts
			}
		}
	}

	if err := s.events.ReportStatusChanged(ctx, change); err != nil {
		log.Warn().Err(err).Msg("failed to publish status event")
	}

	return change, nil
}

// citizenAddress picks where the reporter's feedback goes: the registered
// phone of the linked account when there is one, else the chat sender.
func (s *StatusService) citizenAddress(ctx context.Context, log *logger.Logger, report *models.Report) string {
	if report.AccountID != nil && s.citizens != nil {
		c, err := s.citizens.FindByAccountID(ctx, *report.AccountID)
		switch {
		case err == nil && c.Phone != "":
			return c.Phone
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			log.Warn().Err(err).Str("account_id", *report.AccountID).Msg("account lookup failed, falling back to sender")
		}
	}
	return report.SenderPhone
}

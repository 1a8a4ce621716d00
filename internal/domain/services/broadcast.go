package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"civicpulse/internal/domain/models"
	"civicpulse/pkg/logger"
)

// BroadcastEngine fans a message out to the citizens of an area
type BroadcastEngine struct {
	citizens    CitizenStore
	records     BroadcastStore
	messenger   Messenger
	events      EventPublisher
	workers     int
	countryCode string
	logger      *logger.Logger
}

// NewBroadcastEngine creates a new broadcast engine. workers bounds concurrent sends.
func NewBroadcastEngine(
	citizens CitizenStore,
	records BroadcastStore,
	messenger Messenger,
	events EventPublisher,
	workers int,
	countryCode string,
	log *logger.Logger,
) *BroadcastEngine {
	if workers <= 0 {
		workers = 8
	}
	return &BroadcastEngine{
		citizens:    citizens,
		records:     records,
		messenger:   messenger,
		events:      publisherOrNoop(events),
		workers:     workers,
		countryCode: countryCode,
		logger:      log.WithComponent("broadcast"),
	}
}

// Broadcast sends req.Message to every citizen whose city or address contains
// req.Area, case-insensitively. An empty area matches everyone. Sends are not
// cancelled once started; individual failures are counted, not propagated.
func (e *BroadcastEngine) Broadcast(ctx context.Context, req models.BroadcastRequest) (*models.BroadcastResult, error) {
	ctx = context.WithoutCancel(ctx)
	log := e.logger.WithStage("broadcast")

	citizens, err := e.citizens.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list citizens: %w", err)
	}

	recipients := e.matchRecipients(citizens, req.Area)

	var failed atomic.Int64
	p := pool.New().WithMaxGoroutines(e.workers)
	for _, phone := range recipients {
		p.Go(func() {
			if err := e.deliver(ctx, phone, req.Message); err != nil {
				failed.Add(1)
				log.Warn().Err(err).Str("recipient", phone).Str("area", req.Area).Msg("broadcast send failed")
			}
		})
	}
	p.Wait()

	rec := &models.BroadcastRecord{
		ID:         uuid.New(),
		Area:       req.Area,
		Type:       req.Type,
		Message:    req.Message,
		Department: req.Department,
		Sender:     req.Sender,
		Reach:      len(recipients),
		Failed:     int(failed.Load()),
		Timestamp:  time.Now().UTC(),
	}
	if rec.Type == "" {
		rec.Type = models.BroadcastTypeAlert
	}
	switch {
	case rec.Reach == 0:
		rec.Status = models.BroadcastStatusNoMatch
	case rec.Failed > 0:
		rec.Status = models.BroadcastStatusPartial
	default:
		rec.Status = models.BroadcastStatusSent
	}

	if err := e.records.Append(ctx, rec); err != nil {
		log.Error().Err(err).Str("broadcast_id", rec.ID.String()).Msg("failed to record broadcast")
	}
	if err := e.events.BroadcastCompleted(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("failed to publish broadcast event")
	}

	log.Info().
		Str("area", req.Area).
		Int("reach", rec.Reach).
		Int("failed", rec.Failed).
		Str("status", string(rec.Status)).
		Msg("broadcast completed")

	return &models.BroadcastResult{
		Record:   rec,
		Attempts: rec.Reach,
		Failures: rec.Failed,
	}, nil
}

// Notify sends a single message through the same delivery path as broadcasts
func (e *BroadcastEngine) Notify(ctx context.Context, to, message string) error {
	return e.deliver(ctx, to, message)
}

func (e *BroadcastEngine) deliver(ctx context.Context, to, message string) error {
	// Group and other chat addresses pass through untouched.
	if !strings.Contains(to, "@") {
		to = NormalizePhone(to, e.countryCode)
	}
	if to == "" {
		return fmt.Errorf("no usable address")
	}
	return e.messenger.SendText(ctx, to, message)
}

// matchRecipients returns the unique normalized phones of citizens in area
func (e *BroadcastEngine) matchRecipients(citizens []*models.Citizen, area string) []string {
	area = strings.ToLower(strings.TrimSpace(area))
	seen := make(map[string]struct{}, len(citizens))
	var phones []string

	for _, c := range citizens {
		if area != "" &&
			!strings.Contains(strings.ToLower(c.City), area) &&
			!strings.Contains(strings.ToLower(c.Address), area) {
			continue
		}
		phone := NormalizePhone(c.Phone, e.countryCode)
		if phone == "" {
			continue
		}
		if _, dup := seen[phone]; dup {
			continue
		}
		seen[phone] = struct{}{}
		phones = append(phones, phone)
	}
	return phones
}

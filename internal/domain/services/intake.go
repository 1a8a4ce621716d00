package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"civicpulse/internal/config"
	"civicpulse/internal/domain/models"
	"civicpulse/internal/domain/services/ai"
	"civicpulse/pkg/logger"
)

// IntakePipeline turns verified chat media into reports and collects the
// follow-up address.
type IntakePipeline struct {
	reports   ReportStore
	fetcher   MediaFetcher
	oracle    Oracle
	notifier  *BroadcastEngine
	identity  *IdentityResolver
	events    EventPublisher
	cfg       config.IntakeConfig
	deptKeys  []string
	logger    *logger.Logger
	now       func() time.Time
	escalated sync.WaitGroup
}

// NewIntakePipeline creates a new intake pipeline
func NewIntakePipeline(
	reports ReportStore,
	fetcher MediaFetcher,
	oracle Oracle,
	notifier *BroadcastEngine,
	identity *IdentityResolver,
	events EventPublisher,
	cfg config.IntakeConfig,
	log *logger.Logger,
) *IntakePipeline {
	if cfg.AddressWindow <= 0 {
		cfg.AddressWindow = 15 * time.Minute
	}
	if cfg.DefaultDepartment == "" {
		cfg.DefaultDepartment = "Municipal/General"
	}

	// Longest keys first so "streetlight" wins over "light".
	keys := make([]string, 0, len(cfg.DepartmentMap))
	for k := range cfg.DepartmentMap {
		keys = append(keys, strings.ToLower(k))
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	return &IntakePipeline{
		reports:  reports,
		fetcher:  fetcher,
		oracle:   oracle,
		notifier: notifier,
		identity: identity,
		events:   publisherOrNoop(events),
		cfg:      cfg,
		deptKeys: keys,
		logger:   log.WithComponent("intake"),
		now:      time.Now,
	}
}

// HandleMedia runs an image or video message through verification and, when
// accepted, files a PendingAddress report and asks for the address.
func (p *IntakePipeline) HandleMedia(ctx context.Context, msg *models.InboundMessage, sender string) error {
	log := p.logger.WithSender(sender).WithStage("media")
	replyTo := msg.From

	media, kind, ok := msg.MediaPayload()
	if !ok {
		p.reply(ctx, log, replyTo, msgMediaMissing)
		return nil
	}

	p.reply(ctx, log, replyTo, msgProcessing)

	data, mimeType, err := p.fetcher.FetchMedia(ctx, media.Link)
	if err != nil {
		p.reply(ctx, log, replyTo, msgMediaFetch)
		return fmt.Errorf("failed to fetch media: %w", err)
	}
	if media.MimeType != "" {
		mimeType = media.MimeType
	}

	verdict, err := p.oracle.Verify(ctx, data, mimeType, media.Caption)
	unavailable := err != nil
	if unavailable {
		log.Warn().Err(err).Msg("oracle unavailable, filing report for manual review")
		verdict = &ai.Verdict{}
	} else if !verdict.IsReal {
		log.Info().Str("reason", verdict.FakeReason).Msg("media rejected by oracle")
		p.reply(ctx, log, replyTo, rejectionMessage(verdict.FakeReason))
		return nil
	}

	report := p.newReport(ctx, msg, sender, media, kind, verdict, unavailable)

	if err := p.reports.Create(ctx, report); err != nil {
		p.reply(ctx, log, replyTo, msgSaveFailed)
		return fmt.Errorf("failed to create report: %w", err)
	}

	log = log.WithReport(report.ID.String())
	log.Info().
		Str("department", report.Department).
		Str("priority", string(report.Priority)).
		Bool("unverified", unavailable).
		Msg("report created, awaiting address")

	if err := p.events.ReportCreated(ctx, report); err != nil {
		log.Warn().Err(err).Msg("failed to publish report event")
	}

	if p.isCritical(report) {
		p.escalate(ctx, report)
	}

	p.reply(ctx, log, replyTo, askAddressMessage(report, p.cfg.AddressWindow))
	return nil
}

// CompleteAddress stores a follow-up text as the address of a PendingAddress
// report and moves it to Pending. It returns false when the report had
// already left PendingAddress.
func (p *IntakePipeline) CompleteAddress(ctx context.Context, msg *models.InboundMessage, sender string, report *models.Report) (bool, error) {
	log := p.logger.WithSender(sender).WithReport(report.ID.String()).WithStage("address")

	address := msg.Body()
	if address == "" {
		return false, nil
	}

	updated, changed, err := p.reports.Mutate(ctx, report.ID, func(r *models.Report) (bool, error) {
		if r.Status != models.ReportStatusPendingAddress {
			return false, nil
		}
		if _, err := r.Status.Transition(models.ReportStatusPending); err != nil {
			return false, err
		}
		r.Status = models.ReportStatusPending
		r.Location.Address = address
		return true, nil
	})
	if err != nil {
		p.reply(ctx, log, msg.From, msgAddressFailed)
		return false, fmt.Errorf("failed to save address: %w", err)
	}
	if !changed {
		return false, nil
	}

	log.Info().Str("address", address).Msg("address received, report pending review")

	change := &models.StatusChange{Report: updated, Previous: models.ReportStatusPendingAddress, Changed: true}
	if err := p.events.ReportStatusChanged(ctx, change); err != nil {
		log.Warn().Err(err).Msg("failed to publish status event")
	}

	p.reply(ctx, log, msg.From, addressSavedMessage(updated))
	return true, nil
}

// DepartmentFor maps an oracle issue category to a department
func (p *IntakePipeline) DepartmentFor(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return p.cfg.DefaultDepartment
	}
	for _, key := range p.deptKeys {
		if c == key {
			return p.lookupDepartment(key)
		}
	}
	for _, key := range p.deptKeys {
		if strings.Contains(c, key) {
			return p.lookupDepartment(key)
		}
	}
	return p.cfg.DefaultDepartment
}

// lookupDepartment reads the map with a key that was lowercased at construction
func (p *IntakePipeline) lookupDepartment(lowerKey string) string {
	for k, v := range p.cfg.DepartmentMap {
		if strings.ToLower(k) == lowerKey {
			return v
		}
	}
	return p.cfg.DefaultDepartment
}

// Wait blocks until in-flight escalations finish
func (p *IntakePipeline) Wait() {
	p.escalated.Wait()
}

func (p *IntakePipeline) newReport(
	ctx context.Context,
	msg *models.InboundMessage,
	sender string,
	media *models.MediaBody,
	kind models.MediaKind,
	verdict *ai.Verdict,
	unavailable bool,
) *models.Report {
	category := verdict.Issue
	priority := models.ParsePriority(verdict.Severity)
	if unavailable {
		category = ""
		priority = models.PriorityMedium
	}

	department := p.DepartmentFor(category)
	if category == "" && media.Caption != "" {
		department = p.DepartmentFor(media.Caption)
	}

	now := p.now().UTC()
	report := &models.Report{
		ID:            uuid.New(),
		Status:        models.ReportStatusPendingAddress,
		Source:        models.ReportSourceChat,
		Department:    department,
		DepartmentKey: models.SanitizeDepartmentKey(department),
		Priority:      priority,
		Description:   strings.TrimSpace(media.Caption),
		SenderPhone:   sender,
		GroupID:       msg.GroupID(),
		Location:      models.Location{Address: models.PendingAddress},
		Media:         models.Media{URL: media.Link, Kind: kind},
		AIVerdict: models.AIVerdict{
			Verified:    !unavailable,
			Confidence:  verdict.Confidence,
			Category:    category,
			Unavailable: unavailable,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if accountID, ok := p.identity.Resolve(ctx, sender); ok {
		report.AccountID = &accountID
	}
	return report
}

func (p *IntakePipeline) isCritical(r *models.Report) bool {
	if r.Priority == models.PriorityCritical {
		return true
	}
	return slices.ContainsFunc(p.cfg.CriticalDepartments, func(d string) bool {
		return strings.EqualFold(d, r.Department)
	})
}

// escalate alerts the emergency contact without holding up the citizen's reply
func (p *IntakePipeline) escalate(ctx context.Context, report *models.Report) {
	if p.cfg.EmergencyContact == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	log := p.logger.WithReport(report.ID.String()).WithStage("escalation")

	p.escalated.Add(1)
	go func() {
		defer p.escalated.Done()
		if err := p.notifier.Notify(ctx, p.cfg.EmergencyContact, escalationMessage(report)); err != nil {
			log.Error().Err(err).Msg("failed to escalate report")
			return
		}
		log.Info().Str("department", report.Department).Msg("report escalated to emergency contact")
	}()
}

func (p *IntakePipeline) reply(ctx context.Context, log *logger.Logger, to, body string) {
	if err := p.notifier.Notify(ctx, to, body); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("failed to send reply")
	}
}

package services

import (
	"context"
	"strings"
	"time"

	"civicpulse/internal/domain/models"
	"civicpulse/pkg/logger"
)

// Router classifies inbound chat events and hands them to the right handler.
// Dispatch returns immediately; handling runs on the per-sender queue.
type Router struct {
	operator     string
	countryCode  string
	dedup        Deduper
	dedupTTL     time.Duration
	queue        *SenderQueue
	commands     *CommandProcessor
	conversation *ConversationResolver
	intake       *IntakePipeline
	identity     *IdentityResolver
	replier      *BroadcastEngine
	logger       *logger.Logger
}

// RouterDeps groups the collaborators of a Router
type RouterDeps struct {
	Dedup        Deduper
	Queue        *SenderQueue
	Commands     *CommandProcessor
	Conversation *ConversationResolver
	Intake       *IntakePipeline
	Identity     *IdentityResolver
	Replier      *BroadcastEngine
}

// NewRouter creates a new router. operator is the allow-listed moderation address.
func NewRouter(operator, countryCode string, dedupTTL time.Duration, deps RouterDeps, log *logger.Logger) *Router {
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}
	return &Router{
		operator:     NormalizePhone(operator, countryCode),
		countryCode:  countryCode,
		dedup:        deps.Dedup,
		dedupTTL:     dedupTTL,
		queue:        deps.Queue,
		commands:     deps.Commands,
		conversation: deps.Conversation,
		intake:       deps.Intake,
		identity:     deps.Identity,
		replier:      deps.Replier,
		logger:       log.WithComponent("router"),
	}
}

// Dispatch accepts one inbound event. Echoes of our own messages and gateway
// redeliveries are dropped here.
func (r *Router) Dispatch(ctx context.Context, msg *models.InboundMessage) {
	if msg.FromMe {
		return
	}

	sender := NormalizePhone(msg.SenderAddress(), r.countryCode)
	log := r.logger.WithSender(sender)
	if sender == "" {
		log.Debug().Str("from", msg.From).Msg("dropping message without sender")
		return
	}

	if msg.ID != "" && r.dedup != nil {
		first, err := r.dedup.MarkMessageSeen(ctx, msg.ID, r.dedupTTL)
		if err != nil {
			log.Warn().Err(err).Str("message_id", msg.ID).Msg("dedup check failed, processing anyway")
		} else if !first {
			log.Debug().Str("message_id", msg.ID).Msg("dropping redelivered message")
			return
		}
	}

	if err := r.queue.Submit(sender, func(jobCtx context.Context) {
		r.handle(jobCtx, msg, sender)
	}); err != nil {
		log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to queue message")
	}
}

func (r *Router) handle(ctx context.Context, msg *models.InboundMessage, sender string) {
	log := r.logger.WithSender(sender)

	if r.operator != "" && sender == r.operator {
		if err := r.commands.Execute(ctx, msg.From, msg.Body()); err != nil {
			log.Error().Err(err).Str("stage", "command").Msg("operator command failed")
		}
		return
	}

	switch msg.Type {
	case models.MessageTypeImage, models.MessageTypeVideo:
		if err := r.intake.HandleMedia(ctx, msg, sender); err != nil {
			log.Error().Err(err).Str("stage", "media").Msg("media intake failed")
		}

	case models.MessageTypeText:
		r.handleText(ctx, msg, sender, log)

	default:
		r.reply(ctx, log, msg.From, msgUnknown)
	}
}

func (r *Router) handleText(ctx context.Context, msg *models.InboundMessage, sender string, log *logger.Logger) {
	accountID, _ := r.identity.Resolve(ctx, sender)

	report, err := r.conversation.PendingAddressReport(ctx, sender, accountID)
	if err != nil {
		log.Error().Err(err).Str("stage", "conversation").Msg("failed to load conversation state")
	}

	if report != nil && msg.Body() != "" {
		completed, err := r.intake.CompleteAddress(ctx, msg, sender, report)
		if err != nil {
			log.Error().Err(err).Str("stage", "address").Str("report_id", report.ID.String()).Msg("address completion failed")
			return
		}
		if completed {
			return
		}
	}

	r.reply(ctx, log, msg.From, greetingFor(msg.Body()))
}

// greetingFor picks the canned reply for a text that is not an address
func greetingFor(body string) string {
	switch strings.ToUpper(strings.Trim(strings.TrimSpace(body), "!.?")) {
	case "HI", "HELLO", "HEY", "START":
		return msgGreeting
	case "HELP":
		return msgHelp
	default:
		return msgUnknown
	}
}

func (r *Router) reply(ctx context.Context, log *logger.Logger, to, body string) {
	if err := r.replier.Notify(ctx, to, body); err != nil {
		log.Warn().Err(err).Msg("failed to send reply")
	}
}

package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"civicpulse/internal/domain/models"
	"civicpulse/internal/infrastructure/database/repository"
	"civicpulse/pkg/logger"
)

// CommandVerb is an operator moderation keyword
type CommandVerb string

const (
	CommandVerify CommandVerb = "VERIFY"
	CommandReject CommandVerb = "REJECT"
)

var commandTargets = map[CommandVerb]models.ReportStatus{
	CommandVerify: models.ReportStatusAccepted,
	CommandReject: models.ReportStatusRejected,
}

// Command is a parsed operator command
type Command struct {
	Verb     CommandVerb
	ReportID string
}

// ParseCommand parses "VERIFY <id>" or "REJECT <id>". The keyword is
// case-sensitive and exactly one id must follow.
func ParseCommand(text string) (Command, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return Command{}, false
	}
	verb := CommandVerb(fields[0])
	if _, ok := commandTargets[verb]; !ok {
		return Command{}, false
	}
	return Command{Verb: verb, ReportID: fields[1]}, true
}

// CommandProcessor executes operator moderation commands
type CommandProcessor struct {
	reports ReportStore
	status  *StatusService
	replier *BroadcastEngine
	logger  *logger.Logger
}

// NewCommandProcessor creates a new command processor
func NewCommandProcessor(reports ReportStore, status *StatusService, replier *BroadcastEngine, log *logger.Logger) *CommandProcessor {
	return &CommandProcessor{
		reports: reports,
		status:  status,
		replier: replier,
		logger:  log.WithComponent("commands"),
	}
}

// Execute runs an operator's text. Anything that is not a command is ignored.
func (c *CommandProcessor) Execute(ctx context.Context, operator, text string) error {
	cmd, ok := ParseCommand(text)
	if !ok {
		c.logger.Debug().Str("sender", operator).Msg("ignoring non-command operator message")
		return nil
	}

	log := c.logger.WithSender(operator).WithStage("command")

	report, err := c.findReport(ctx, cmd.ReportID)
	if errors.Is(err, repository.ErrNotFound) {
		c.reply(ctx, log, operator, operatorNotFoundMessage(cmd.ReportID))
		return nil
	}
	if err != nil {
		c.reply(ctx, log, operator, operatorFailedMessage(cmd.ReportID))
		return err
	}

	log = log.WithReport(report.ID.String())

	change, err := c.status.ChangeStatus(ctx, report.ID, commandTargets[cmd.Verb], "", operator)
	switch {
	case errors.Is(err, models.ErrInvalidTransition):
		c.reply(ctx, log, operator, operatorInvalidMessage(report, cmd))
		return nil
	case errors.Is(err, repository.ErrNotFound):
		c.reply(ctx, log, operator, operatorNotFoundMessage(cmd.ReportID))
		return nil
	case err != nil:
		c.reply(ctx, log, operator, operatorFailedMessage(cmd.ReportID))
		return err
	}

	log.Info().Str("verb", string(cmd.Verb)).Bool("changed", change.Changed).Msg("operator command applied")
	c.reply(ctx, log, operator, operatorSuccessMessage(change))
	return nil
}

// findReport accepts a full UUID or the short id shown in chat replies
func (c *CommandProcessor) findReport(ctx context.Context, id string) (*models.Report, error) {
	if parsed, err := uuid.Parse(id); err == nil {
		return c.reports.GetByID(ctx, parsed)
	}
	if len(id) < 8 || strings.Trim(strings.ToLower(id), "0123456789abcdef-") != "" {
		return nil, repository.ErrNotFound
	}
	return c.reports.FindByShortID(ctx, strings.ToLower(id))
}

func (c *CommandProcessor) reply(ctx context.Context, log *logger.Logger, to, body string) {
	if err := c.replier.Notify(ctx, to, body); err != nil {
		log.Warn().Err(err).Msg("failed to reply to operator")
	}
}

package services

import (
	"fmt"
	"strings"
	"time"

	"civicpulse/internal/domain/models"
)

// Chat replies. Every reply tells the citizen what to do next.
const (
	msgProcessing     = "Thanks! We're checking your photo/video now. This usually takes under a minute."
	msgMediaMissing   = "We couldn't read that attachment. Please send the photo or video again."
	msgMediaFetch     = "We couldn't download your photo/video. Please send it again."
	msgSaveFailed     = "We couldn't save your report right now. Please send the photo again in a few minutes."
	msgAddressFailed  = "We couldn't save that address. Please send it again."
	msgGreeting       = "Hello! To report a civic issue, send a photo or video of the problem. We'll then ask you for its address."
	msgHelp           = "To report a civic issue:\n1. Send a photo or video of the problem.\n2. Reply with the address when we ask for it.\nWe'll message you when the report is reviewed."
	msgUnknown        = "Sorry, we didn't understand that. Send a photo or video of the issue to file a report, or HELP for instructions."
	defaultFakeReason = "it doesn't appear to show a civic issue"
)

func rejectionMessage(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultFakeReason
	}
	return fmt.Sprintf("We couldn't accept this report because %s. Please send a clear, recent photo or video of the issue.", reason)
}

func askAddressMessage(r *models.Report, window time.Duration) string {
	msg := fmt.Sprintf(
		"Report #%s received (%s, %s priority, routed to %s).\nPlease reply with the address or landmark of the issue within %d minutes.",
		r.ShortID(), categoryOrIssue(r), r.Priority, r.Department, int(window.Minutes()),
	)
	if r.AIVerdict.Unavailable {
		msg += "\nWe could not verify your media automatically, so a staff member will review it."
	}
	return msg
}

func addressSavedMessage(r *models.Report) string {
	return fmt.Sprintf("Thank you! Report #%s at %s is now pending review by %s. We'll message you when it's reviewed.",
		r.ShortID(), r.Location.Address, r.Department)
}

func escalationMessage(r *models.Report) string {
	return fmt.Sprintf("URGENT: %s report #%s (%s priority) for %s.\nSender: %s\nMedia: %s",
		categoryOrIssue(r), r.ShortID(), r.Priority, r.Department, r.SenderPhone, r.Media.URL)
}

func citizenStatusMessage(r *models.Report, note string) string {
	var msg string
	switch r.Status {
	case models.ReportStatusAccepted:
		msg = fmt.Sprintf("Your report #%s has been verified and forwarded to %s.", r.ShortID(), r.Department)
	case models.ReportStatusRejected:
		msg = fmt.Sprintf("Your report #%s was reviewed and rejected. You can send a new photo if the issue persists.", r.ShortID())
	case models.ReportStatusResolved:
		msg = fmt.Sprintf("Good news! Your report #%s has been marked resolved. Thank you for helping your city.", r.ShortID())
	default:
		msg = fmt.Sprintf("Your report #%s is now %s.", r.ShortID(), r.Status)
	}
	if note = strings.TrimSpace(note); note != "" {
		msg += "\nNote from staff: " + note
	}
	return msg
}

func groupStatusMessage(r *models.Report) string {
	return fmt.Sprintf("Update on report #%s (%s): %s.", r.ShortID(), categoryOrIssue(r), r.Status)
}

func areaAlertMessage(r *models.Report, area string) string {
	return fmt.Sprintf("Alert for %s: a verified %s issue has been reported at %s. %s is on it. Please take care in the area.",
		area, strings.ToLower(categoryOrIssue(r)), r.Location.Address, r.Department)
}

func operatorSuccessMessage(change *models.StatusChange) string {
	r := change.Report
	msg := fmt.Sprintf("Report #%s marked %s.", r.ShortID(), r.Status)
	if !change.Changed {
		msg += " (no change)"
	}
	if change.Changed && r.Status == models.ReportStatusAccepted {
		msg += fmt.Sprintf(" Alert sent to %d resident(s).", change.Reach)
	}
	return msg
}

func operatorNotFoundMessage(id string) string {
	return fmt.Sprintf("Report %s not found. Check the id and try again.", id)
}

func operatorInvalidMessage(r *models.Report, cmd Command) string {
	return fmt.Sprintf("Report #%s is %s and cannot be changed with %s.", r.ShortID(), r.Status, cmd.Verb)
}

func operatorFailedMessage(id string) string {
	return fmt.Sprintf("Could not update report %s. Please retry.", id)
}

func categoryOrIssue(r *models.Report) string {
	if r.AIVerdict.Category != "" {
		return r.AIVerdict.Category
	}
	return "Civic issue"
}

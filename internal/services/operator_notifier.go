package services

import (
	"context"
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/shiftworks/assignment-service/internal/config"
	"github.com/shiftworks/assignment-service/internal/constants"
	"github.com/shiftworks/assignment-service/internal/models"
	"github.com/shiftworks/assignment-service/internal/utils"
)

// OperatorNotifier alerts operations when a settlement needs a human.
type OperatorNotifier interface {
	NotifySettlementDeadLetter(ctx context.Context, task *models.SettlementTask) error
}

type SendgridOperatorNotifier struct {
	cfg    *config.Config
	client *sendgrid.Client
}

// NewSendgridOperatorNotifier only logs when no API key is configured.
func NewSendgridOperatorNotifier(cfg *config.Config) *SendgridOperatorNotifier {
	n := &SendgridOperatorNotifier{cfg: cfg}
	if cfg.SendgridAPIKey != "" {
		n.client = sendgrid.NewSendClient(cfg.SendgridAPIKey)
	}
	return n
}

func (n *SendgridOperatorNotifier) NotifySettlementDeadLetter(ctx context.Context, task *models.SettlementTask) error {
	msg := buildDeadLetterEmail(n.cfg, task)
	if n.client == nil {
		utils.Logger.WithField("assignment_id", task.AssignmentID).
			Warnf("SendGrid disabled; would have sent %q", msg.Subject)
		return nil
	}

	resp, err := n.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: sendgrid: %v", utils.ErrExternalServiceFailure, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: sendgrid returned %d: %s", utils.ErrExternalServiceFailure, resp.StatusCode, resp.Body)
	}
	return nil
}

func buildDeadLetterEmail(cfg *config.Config, task *models.SettlementTask) *mail.SGMailV3 {
	from := mail.NewEmail(cfg.OrganizationName, cfg.LDFlag_SendgridFromEmail)
	to := mail.NewEmail(constants.OperationsTeamName, constants.OperationsTeamEmail)
	subject := fmt.Sprintf(constants.EmailSubjectSettlementDeadLetter, task.AssignmentID)

	reason := utils.Val(task.LastFailureReason)
	plain := fmt.Sprintf(
		"Settlement for assignment %s gave up after %d attempts.\nLast failure: %s\nTask: %s\n",
		task.AssignmentID, task.Attempts, reason, task.ID,
	)
	htmlBody := fmt.Sprintf(
		"<p>Settlement for assignment <b>%s</b> gave up after %d attempts.</p><p>Last failure: %s</p><p>Task: %s</p>",
		task.AssignmentID, task.Attempts, html.EscapeString(reason), task.ID,
	)

	msg := mail.NewSingleEmail(from, subject, to, plain, htmlBody)
	if cfg.LDFlag_SendgridSandboxMode {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		msg.SetMailSettings(ms)
	}
	return msg
}

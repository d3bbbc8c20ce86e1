package services

import (
	"context"
	"strings"

	"ruleflow/internal/models"

	"github.com/sirupsen/logrus"
)

// Notifier delivers notify-action messages. Delivery is owned by the
// surrounding application; the engine only hands over the ticket and the
// configured recipients.
type Notifier interface {
	Notify(ctx context.Context, ticket *models.Ticket, recipients []string, message string) error
}

// LogNotifier is the default Notifier: it records the notification in the
// application log and delivers nothing.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, ticket *models.Ticket, recipients []string, message string) error {
	n.logger.Infof("notify: ticket %d -> [%s]: %s", ticket.ID, strings.Join(recipients, ", "), message)
	return nil
}

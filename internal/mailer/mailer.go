// Package mailer dispatches order-confirmation mail after checkout. The
// dispatch is best-effort: failures are logged and never surface to the
// buyer, whose purchase has already committed.
package mailer

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"

	"github.com/swishtrade/swish/internal/models"
)

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

type OrderLine struct {
	CardName string
	Price    decimal.Decimal
}

type Sender struct {
	cfg Config
	log *slog.Logger
}

func NewSender(cfg Config, log *slog.Logger) *Sender {
	return &Sender{cfg: cfg, log: log}
}

func (s *Sender) SendOrderConfirmation(to, username string, lines []OrderLine, addr models.Address, shipping, total decimal.Decimal, txID string) error {
	e := email.NewEmail()
	e.From = s.cfg.Sender
	e.To = []string{to}
	e.Subject = "Your SWISH order confirmation"

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\nThanks for your order! Here is what you bought:\n\n", username)
	for _, line := range lines {
		fmt.Fprintf(&b, "  %s - $%s\n", line.CardName, line.Price.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nShipping: $%s\nTotal: $%s\n", shipping.StringFixed(2), total.StringFixed(2))
	fmt.Fprintf(&b, "\nShipping to:\n  %s\n  %s\n  %s, %s %s\n  %s\n",
		addr.FullName, addr.Street, addr.City, addr.State, addr.PostalCode, addr.Country)
	fmt.Fprintf(&b, "\nTransaction: %s\n\nBest regards,\nThe SWISH team\n", txID)
	e.Text = []byte(b.String())

	smtpAddr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := e.Send(smtpAddr, auth); err != nil {
		s.log.Error("order confirmation send failed", "to", to, "tx_id", txID, "err", err)
		return fmt.Errorf("failed to send order confirmation: %w", err)
	}

	s.log.Info("order confirmation sent", "to", to, "tx_id", txID)
	return nil
}

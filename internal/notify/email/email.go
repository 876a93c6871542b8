package email

import (
	"context"
	"fide-scraper/internal/components/assert"
	"fide-scraper/internal/components/telemetry"
	"fide-scraper/internal/rating"
	"fide-scraper/internal/reconcile"
	"fide-scraper/internal/scrapers/fide"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	jemail "github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fide-scraper/notify/email")

const (
	report_notifier_notify = "notifier.notify"
	report_sender_send     = "sender.send"
)

const DefaultFrom = "noreply@chesshub.cloud"

type SMTPConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	// From is the sender address, when empty Username is used, then
	// DefaultFrom.
	From string
	// AdminCC is copied on every notification when set.
	AdminCC string
}

func (c SMTPConfig) sender() string {
	if c.From != "" {
		return c.From
	}
	if c.Username != "" {
		return c.Username
	}
	return DefaultFrom
}

type Message struct {
	From    string
	To      []string
	Cc      []string
	Subject string
	Body    string
}

// Sender delivers a single message.
//
// note: fault injection point
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers messages over SMTP, authenticating only when both a
// username and a password are configured.
type SMTPSender struct {
	config SMTPConfig
}

func NewSMTPSender(config SMTPConfig) SMTPSender {
	assert.NotEmptyStr(config.Server)
	return SMTPSender{config: config}
}

func (s SMTPSender) Send(ctx context.Context, msg Message) error {
	_, span := tracer.Start(ctx, "Send")
	defer span.End()

	mail := jemail.NewEmail()
	mail.From = msg.From
	mail.To = msg.To
	mail.Cc = msg.Cc
	mail.Subject = msg.Subject
	mail.Text = []byte(msg.Body)

	addr := fmt.Sprintf("%s:%d", s.config.Server, s.config.Port)
	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Server)
	}

	err := mail.Send(addr, auth)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}

// Contacts resolves the notification address of a player, an empty address
// means the player opted out.
type Contacts interface {
	Email(id string) string
}

type Notifier struct {
	sender      Sender
	config      SMTPConfig
	profileBase string
	tel         telemetry.API
}

func NewNotifier(sender Sender, config SMTPConfig, profileBase string, tel telemetry.API) Notifier {
	assert.NotNil(sender)
	assert.NotNil(tel)
	return Notifier{
		sender:      sender,
		config:      config,
		profileBase: profileBase,
		tel:         telemetry.NewScopedAPI("email_notifier", tel),
	}
}

// Notify emails every player that has new months and a contact address. A
// failed delivery is counted and never stops the remaining ones.
func (n Notifier) Notify(ctx context.Context, outcomes []reconcile.Outcome, contacts Contacts) (sent int, failed int) {
	ctx, span := tracer.Start(ctx, "Notify")
	defer span.End()

	for _, o := range outcomes {
		if !o.OK() || len(o.NewMonths) == 0 {
			continue
		}
		address := strings.TrimSpace(contacts.Email(o.PlayerID))
		if address == "" {
			continue
		}

		subject, body := Compose(o.Name, o.PlayerID, o.History, fide.ProfileURL(n.profileBase, o.PlayerID))
		msg := Message{
			From:    n.config.sender(),
			To:      []string{address},
			Subject: subject,
			Body:    body,
		}
		if cc := strings.TrimSpace(n.config.AdminCC); cc != "" {
			msg.Cc = []string{cc}
		}

		err := n.sender.Send(ctx, msg)
		if err != nil {
			failed++
			n.tel.ReportWarning(report_sender_send, err, o.PlayerID, address)
			continue
		}
		sent++
		n.tel.ReportDebug("email sent", o.PlayerID, address)
	}

	span.SetAttributes(
		attribute.Int("sent", sent),
		attribute.Int("failed", failed),
	)
	n.tel.ReportCount(report_notifier_notify, int64(sent))
	return sent, failed
}

// Compose renders the notification for a player. History is most recent
// first, with two or more records the two most recent are compared,
// with exactly one its ratings are listed.
func Compose(name, id string, history []rating.MonthlyRecord, profileURL string) (subject string, body string) {
	if name == "" {
		name = "Player"
	}
	subject = fmt.Sprintf("Your FIDE Rating Update - %s", name)

	lines := []string{
		fmt.Sprintf("Dear %s,", name),
		"",
		"Your FIDE ratings have been updated. Here are the changes:",
		"",
	}

	switch {
	case len(history) >= 2:
		current, previous := history[0], history[1]
		disciplines := make([]rating.Discipline, len(rating.Disciplines))
		copy(disciplines, rating.Disciplines)
		sort.Slice(disciplines, func(i, j int) bool {
			return disciplines[i].String() < disciplines[j].String()
		})
		for _, d := range disciplines {
			lines = append(lines, fmt.Sprintf(
				"%s Rating: %s → %s",
				d, previous.Get(d), current.Get(d),
			))
		}
	case len(history) == 1:
		for _, d := range rating.Disciplines {
			lines = append(lines, fmt.Sprintf("%s Rating: %s", d, history[0].Get(d)))
		}
	}

	lines = append(lines,
		"",
		fmt.Sprintf("FIDE ID: %s", id),
		fmt.Sprintf("Profile: %s", profileURL),
		"",
		"Best regards,",
		"FIDE Rating Monitor",
	)
	return subject, strings.Join(lines, "\n")
}

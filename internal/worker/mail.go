package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes outgoing mail to the log instead of delivering it.
type LogMailer struct {
	Logger *log.Logger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	m.Logger.Info("mail", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}

var errMissingRecipient = errors.New("job has no recipient")

// VerificationEmailHandler mails the verification link in the job payload.
func VerificationEmailHandler(m Mailer) JobHandler {
	return func(ctx context.Context, job *Job) error {
		to := job.String("email")
		if to == "" {
			return errMissingRecipient
		}
		return m.Send(ctx, Message{
			To:      to,
			Subject: "আপনার ইমেইল ভেরিফাই করুন",
			Body:    fmt.Sprintf("একাউন্ট চালু করতে এই লিংকে যান: %s", job.String("link")),
		})
	}
}

// PasswordChangedHandler tells the account owner their password changed.
func PasswordChangedHandler(m Mailer) JobHandler {
	return func(ctx context.Context, job *Job) error {
		to := job.String("email")
		if to == "" {
			return errMissingRecipient
		}
		return m.Send(ctx, Message{
			To:      to,
			Subject: "পাসওয়ার্ড পরিবর্তন হয়েছে",
			Body:    "আপনার একাউন্টের পাসওয়ার্ড পরিবর্তন করা হয়েছে। এটি আপনি না করে থাকলে দ্রুত যোগাযোগ করুন।",
		})
	}
}

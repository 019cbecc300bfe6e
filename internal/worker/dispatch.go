package worker

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"outreach-pipeline/internal/mailer"
	"outreach-pipeline/internal/models"
	"outreach-pipeline/internal/telemetry"
)

// ErrTransportUnavailable wraps a failure to open the mail session at all.
var ErrTransportUnavailable = errors.New("SMTP connection failed")

// SentRecorder appends to the sent-log. *store.Backends implements it.
type SentRecorder interface {
	AppendSent(ctx context.Context, rec models.SentEmail) error
}

// Progress observes a dispatch. Before runs ahead of each attempt with the
// 1-based position; After runs once the attempt is done.
type Progress struct {
	Before func(index int, email string)
	After  func(email string, err error)
}

// Outcome is what one dispatch delivered.
type Outcome struct {
	Sent     int
	Failures []models.SendFailure
}

// Dispatcher renders and sends the templated email to a list of recipients
// over a single transport session.
type Dispatcher struct {
	cfg         mailer.Config
	transport   mailer.Transport
	attachments mailer.AttachmentSource
	sentLog     SentRecorder
	interval    time.Duration
	now         func() time.Time
}

func NewDispatcher(cfg mailer.Config, transport mailer.Transport, attachments mailer.AttachmentSource, sentLog SentRecorder, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		cfg:         cfg,
		transport:   transport,
		attachments: attachments,
		sentLog:     sentLog,
		interval:    interval,
		now:         time.Now,
	}
}

// Dispatch sends serially in the given order. Per-recipient failures are
// recorded and do not stop the run. A template, attachment or connection
// problem aborts before anything is sent.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []Recipient, progress Progress) (Outcome, error) {
	var out Outcome
	if len(recipients) == 0 {
		return out, nil
	}

	tmpl, err := mailer.LoadTemplate(d.cfg.TemplateFile)
	if err != nil {
		return out, err
	}
	var files []mailer.Attachment
	if d.attachments != nil {
		files, err = d.attachments.Load(ctx)
		if err != nil {
			return out, errors.Wrap(err, "load attachments")
		}
	}

	session, err := d.transport.Open(ctx)
	if err != nil {
		return out, errors.Mark(errors.Wrap(err, ErrTransportUnavailable.Error()), ErrTransportUnavailable)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			zap.L().Warn("close smtp session", zap.Error(cerr))
		}
	}()

	var limiter *rate.Limiter
	if d.interval > 0 {
		limiter = rate.NewLimiter(rate.Every(d.interval), 1)
	}

	for i, r := range recipients {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return out, errors.Wrap(err, "wait for send slot")
			}
		}
		if progress.Before != nil {
			progress.Before(i+1, r.Email)
		}

		err := d.sendOne(ctx, session, tmpl, files, r)
		if err != nil {
			out.Failures = append(out.Failures, models.SendFailure{Email: r.Email, Error: err.Error()})
			telemetry.EmailsFailed.Inc()
			zap.L().Warn("send failed",
				zap.Int("index", i+1), zap.Int("total", len(recipients)),
				zap.String("email", r.Email), zap.Error(err))
		} else {
			out.Sent++
			telemetry.EmailsSent.Inc()
			zap.L().Info("sent",
				zap.Int("index", i+1), zap.Int("total", len(recipients)),
				zap.String("email", r.Email))
		}
		if progress.After != nil {
			progress.After(r.Email, err)
		}
	}
	return out, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, session mailer.Session, tmpl mailer.Template, files []mailer.Attachment, r Recipient) error {
	now := d.now()
	msg, err := mailer.Compose(mailer.Message{
		From:          d.cfg.Sender,
		To:            r.Email,
		Template:      tmpl,
		PortfolioLink: d.cfg.PortfolioLink,
		Post:          r.Post,
		Attachments:   files,
		Date:          now,
	})
	if err != nil {
		return err
	}
	if err := session.Send(ctx, r.Email, msg); err != nil {
		return err
	}
	// delivered; a sent-log failure must not turn this into a failed send
	if d.sentLog != nil {
		if err := d.sentLog.AppendSent(ctx, models.NewSentEmail(r.Email, r.Post, now)); err != nil {
			zap.L().Error("append sent-log", zap.String("email", r.Email), zap.Error(err))
		}
	}
	return nil
}

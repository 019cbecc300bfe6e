package mailer

import (
	"context"
	"crypto/tls"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Transport opens delivery sessions.
type Transport interface {
	Open(ctx context.Context) (Session, error)
}

// Session delivers messages over one authenticated connection. A failed Send
// leaves the session usable for the next recipient.
type Session interface {
	Send(ctx context.Context, to string, msg []byte) error
	Close() error
}

// SMTPTransport dials the configured server, upgrades with STARTTLS when
// offered (or uses implicit TLS on port 465) and authenticates with PLAIN.
type SMTPTransport struct {
	cfg         Config
	dialTimeout time.Duration
	tlsConfig   *tls.Config
}

func NewSMTPTransport(cfg Config) *SMTPTransport {
	return &SMTPTransport{
		cfg:         cfg,
		dialTimeout: 30 * time.Second,
		tlsConfig:   &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}
}

func (t *SMTPTransport) Open(ctx context.Context) (Session, error) {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.dialTimeout}

	var conn net.Conn
	var err error
	if t.cfg.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: t.tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "smtp greeting")
	}
	if err := t.handshake(client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &smtpSession{client: client, from: t.cfg.Sender}, nil
}

func (t *SMTPTransport) handshake(client *smtp.Client) error {
	if err := client.Hello("localhost"); err != nil {
		return errors.Wrap(err, "ehlo")
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(t.tlsConfig); err != nil {
			return errors.Wrap(err, "starttls")
		}
	}
	if ok, _ := client.Extension("AUTH"); !ok {
		return errors.Newf("server %s does not offer AUTH", t.cfg.Host)
	}
	if err := client.Auth(smtp.PlainAuth("", t.cfg.Sender, t.cfg.Password, t.cfg.Host)); err != nil {
		return errors.Wrap(err, "smtp login")
	}
	return nil
}

type smtpSession struct {
	client *smtp.Client
	from   string
}

func (s *smtpSession) Send(ctx context.Context, to string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.send(to, msg); err != nil {
		// clear the failed transaction so the next recipient starts clean
		if rerr := s.client.Reset(); rerr != nil {
			zap.L().Warn("smtp reset failed", zap.Error(rerr))
		}
		return err
	}
	return nil
}

func (s *smtpSession) send(to string, msg []byte) error {
	if err := s.client.Mail(s.from); err != nil {
		return errors.Wrap(err, "mail from")
	}
	if err := s.client.Rcpt(to); err != nil {
		return errors.Wrapf(err, "rcpt to %s", to)
	}
	w, err := s.client.Data()
	if err != nil {
		return errors.Wrap(err, "data")
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "write message")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "end data")
	}
	return nil
}

func (s *smtpSession) Close() error {
	if err := s.client.Quit(); err != nil {
		_ = s.client.Close()
		return errors.Wrap(err, "quit")
	}
	return nil
}

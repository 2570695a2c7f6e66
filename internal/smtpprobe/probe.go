// Package smtpprobe checks whether a mail exchanger will accept a recipient.
// A probe connects to the exchanger, greets it, announces a fixed sender and
// issues RCPT TO for the candidate address; no message is ever sent.
package smtpprobe

import (
	"context"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/metrics"
)

const (
	defaultPort           = 25
	defaultConnectTimeout = time.Second
	defaultDialogTimeout  = 2 * time.Second
	defaultHeloDomain     = "validator.com"
	defaultMailFrom       = "test@validator.com"
)

// Waiter paces probes per mail host.
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// DialFunc opens the TCP connection to an exchanger.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config controls probe behavior.
type Config struct {
	Port           int
	ConnectTimeout time.Duration
	DialogTimeout  time.Duration
	HeloDomain     string
	MailFrom       string
	// Limiter optionally paces probes per exchanger host.
	Limiter Waiter
	// Dial overrides the TCP dialer (tests).
	Dial   DialFunc
	Logger *zap.Logger
}

// Prober runs SMTP recipient probes. It is safe for concurrent use.
type Prober struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs a Prober, filling unset fields with defaults.
func New(cfg Config) *Prober {
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.DialogTimeout <= 0 {
		cfg.DialogTimeout = defaultDialogTimeout
	}
	if cfg.HeloDomain == "" {
		cfg.HeloDomain = defaultHeloDomain
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = defaultMailFrom
	}
	if cfg.Dial == nil {
		dialer := &net.Dialer{}
		cfg.Dial = dialer.DialContext
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{cfg: cfg, logger: logger}
}

// Probe reports whether mxHost accepts email as a recipient. Every failure,
// including timeouts and protocol errors, yields false.
func (p *Prober) Probe(ctx context.Context, mxHost, email string) bool {
	if mxHost == "" || email == "" {
		return false
	}
	if p.cfg.Limiter != nil {
		if err := p.cfg.Limiter.Wait(ctx, mxHost); err != nil {
			metrics.ObserveSMTPProbe("rate_limited")
			return false
		}
	}

	conn, err := p.connect(ctx, mxHost)
	if err != nil {
		metrics.ObserveSMTPProbe("unreachable")
		p.logger.Debug("smtp connect failed", zap.String("mx", mxHost), zap.Error(err))
		return false
	}
	defer conn.Close() //nolint:errcheck // best-effort close

	accepted, err := p.converse(ctx, conn, email)
	switch {
	case err != nil:
		metrics.ObserveSMTPProbe("error")
		p.logger.Debug("smtp dialog failed", zap.String("mx", mxHost), zap.Error(err))
		return false
	case accepted:
		metrics.ObserveSMTPProbe("accepted")
		return true
	default:
		metrics.ObserveSMTPProbe("rejected")
		return false
	}
}

func (p *Prober) connect(ctx context.Context, host string) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	conn, err := p.cfg.Dial(dialCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(p.cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("dial exchanger: %w", err)
	}
	return conn, nil
}

func (p *Prober) converse(ctx context.Context, conn net.Conn, email string) (bool, error) {
	deadline := time.Now().Add(p.cfg.DialogTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return false, fmt.Errorf("set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	tp := textproto.NewConn(conn)
	if _, _, err := tp.ReadResponse(220); err != nil {
		return false, fmt.Errorf("read greeting: %w", err)
	}
	if err := command(tp, 250, "HELO %s", p.cfg.HeloDomain); err != nil {
		return false, err
	}
	if err := command(tp, 250, "MAIL FROM:<%s>", p.cfg.MailFrom); err != nil {
		return false, err
	}
	if err := tp.PrintfLine("RCPT TO:<%s>", email); err != nil {
		return false, fmt.Errorf("send rcpt: %w", err)
	}
	code, _, err := tp.ReadResponse(0)
	if err != nil {
		return false, fmt.Errorf("read rcpt reply: %w", err)
	}
	_ = tp.PrintfLine("QUIT")
	return Accepts(code), nil
}

func command(tp *textproto.Conn, expect int, format string, args ...any) error {
	if err := tp.PrintfLine(format, args...); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	if _, _, err := tp.ReadResponse(expect); err != nil {
		return fmt.Errorf("command reply: %w", err)
	}
	return nil
}

// Accepts reports whether an RCPT TO reply code means the recipient is accepted.
func Accepts(code int) bool {
	switch code {
	case 250, 251, 252:
		return true
	default:
		return false
	}
}

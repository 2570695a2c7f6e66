// Package email implements the email validation state machine:
// syntax, domain, MX, then SMTP. The first failing stage decides the verdict.
package email

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/syntax"
	"github.com/Moxx-Company/validator-pro/internal/validation"
)

const defaultItemTimeout = 10 * time.Second

// DomainResolver answers the DNS stages.
type DomainResolver interface {
	DomainExists(ctx context.Context, domain string) bool
	MXRecords(ctx context.Context, domain string) []string
}

// Prober answers the SMTP stage.
type Prober interface {
	Probe(ctx context.Context, mxHost, email string) bool
}

// Config controls the validator.
type Config struct {
	// ItemTimeout caps the wall time of one address (default 10s).
	ItemTimeout time.Duration
	Logger      *zap.Logger
}

// Validator validates email addresses. It is safe for concurrent use.
type Validator struct {
	resolver DomainResolver
	prober   Prober
	timeout  time.Duration
	logger   *zap.Logger
}

// New constructs a Validator.
func New(resolver DomainResolver, prober Prober, cfg Config) *Validator {
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = defaultItemTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		resolver: resolver,
		prober:   prober,
		timeout:  cfg.ItemTimeout,
		logger:   logger,
	}
}

// Kind implements validation.Validator.
func (v *Validator) Kind() validation.Kind {
	return validation.KindEmail
}

// Validate runs the pipeline for one address.
func (v *Validator) Validate(ctx context.Context, item string) validation.Verdict {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	address := strings.TrimSpace(item)
	details := &validation.EmailDetails{}
	verdict := validation.Verdict{Item: address, Kind: validation.KindEmail, Email: details}
	finish := func(reason validation.Reason) validation.Verdict {
		if reason != "" {
			verdict.Fail(reason, "")
		}
		verdict.Elapsed = time.Since(start)
		return verdict
	}

	domain, ok := syntax.Email(address)
	if !ok {
		return finish(validation.ReasonInvalidSyntax)
	}
	details.SyntaxOK = true
	details.Domain = domain

	details.DomainExists = v.resolver.DomainExists(ctx, domain)
	if !details.DomainExists {
		return finish(v.failure(ctx, validation.ReasonDomainNotFound))
	}

	details.MXRecords = v.resolver.MXRecords(ctx, domain)
	details.MXExists = len(details.MXRecords) > 0
	if !details.MXExists {
		return finish(v.failure(ctx, validation.ReasonNoMX))
	}

	details.SMTPOK = v.prober.Probe(ctx, details.MXRecords[0], address)
	if !details.SMTPOK {
		return finish(v.failure(ctx, validation.ReasonSMTPRejected))
	}

	verdict.Valid = true
	return finish("")
}

// failure attributes a negative stage result to the item deadline when the
// deadline is what cut the stage short.
func (v *Validator) failure(ctx context.Context, reason validation.Reason) validation.Reason {
	if ctx.Err() != nil {
		v.logger.Debug("email stage cut by deadline", zap.String("stage_reason", string(reason)))
		return validation.ReasonTimeout
	}
	return reason
}

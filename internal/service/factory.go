package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/email"
	"github.com/Moxx-Company/validator-pro/internal/resolver"
	"github.com/Moxx-Company/validator-pro/internal/validation"
)

// ValidatorFactory builds the validator a job runs with.
type ValidatorFactory interface {
	NewValidator(kind validation.Kind) (validation.Validator, error)
}

// Factory builds per-job validators. Email validators get a fresh DNS
// resolver so domain memoization lives exactly as long as the job; the SMTP
// prober and phone resolver are shared.
type Factory struct {
	DNS    resolver.Config
	Prober email.Prober
	Email  email.Config
	Phone  validation.Validator
	Logger *zap.Logger
}

// NewValidator implements ValidatorFactory.
func (f *Factory) NewValidator(kind validation.Kind) (validation.Validator, error) {
	switch kind {
	case validation.KindEmail:
		if f.Prober == nil {
			return nil, fmt.Errorf("email validator: no smtp prober configured")
		}
		dns := f.DNS
		if dns.Logger == nil {
			dns.Logger = f.Logger
		}
		cfg := f.Email
		if cfg.Logger == nil {
			cfg.Logger = f.Logger
		}
		return email.New(resolver.New(dns), f.Prober, cfg), nil
	case validation.KindPhone:
		if f.Phone == nil {
			return nil, fmt.Errorf("phone validator: not configured")
		}
		return f.Phone, nil
	default:
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}
}

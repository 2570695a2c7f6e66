// Package phone resolves phone numbers into validity verdicts and carrier,
// country, type and timezone metadata. Resolution is CPU-only but runs on a
// time-boxed goroutine because pathological input can make parsing slow.
package phone

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/Moxx-Company/validator-pro/internal/syntax"
	"github.com/Moxx-Company/validator-pro/internal/validation"
)

const (
	defaultTimeout    = 3 * time.Second
	maxRegionsInError = 5
	metadataLanguage  = "en"
	unknownCarrier    = "Unknown"
)

// Config controls the resolver.
type Config struct {
	// DefaultRegion is tried before any rule-derived region when set.
	DefaultRegion string
	// Timeout caps one resolution (default 3s).
	Timeout  time.Duration
	Rules    []RegionRule
	Fallback []string
	Logger   *zap.Logger
}

// Resolver validates phone numbers. It is safe for concurrent use.
type Resolver struct {
	cfg     Config
	logger  *zap.Logger
	resolve func(raw string) validation.Verdict
}

// New constructs a Resolver, filling unset fields with defaults.
func New(cfg Config) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules
	}
	if cfg.Fallback == nil {
		cfg.Fallback = DefaultFallback
	}
	cfg.DefaultRegion = strings.ToUpper(strings.TrimSpace(cfg.DefaultRegion))
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{cfg: cfg, logger: logger}
	r.resolve = r.resolveNumber
	return r
}

// Kind implements validation.Validator.
func (r *Resolver) Kind() validation.Kind {
	return validation.KindPhone
}

// Validate resolves one number within the configured timeout. A resolution
// that overruns is abandoned and reported as a timeout.
func (r *Resolver) Validate(ctx context.Context, item string) validation.Verdict {
	start := time.Now()
	raw := strings.TrimSpace(item)
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	done := make(chan validation.Verdict, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("phone resolution panicked", zap.String("item", raw), zap.Any("panic", rec))
				done <- validation.ProcessingErrorVerdict(validation.KindPhone, raw, fmt.Sprint(rec))
			}
		}()
		done <- r.resolve(raw)
	}()

	select {
	case verdict := <-done:
		verdict.Elapsed = time.Since(start)
		return verdict
	case <-ctx.Done():
		r.logger.Warn("phone resolution timed out", zap.String("item", raw), zap.Duration("timeout", r.cfg.Timeout))
		return validation.TimeoutVerdict(validation.KindPhone, raw, time.Since(start))
	}
}

func (r *Resolver) resolveNumber(raw string) validation.Verdict {
	details := &validation.PhoneDetails{}
	verdict := validation.Verdict{Item: raw, Kind: validation.KindPhone, Phone: details}

	digits, ok := syntax.Phone(raw)
	if !ok {
		verdict.Fail(validation.ReasonInvalidSyntax, "")
		return verdict
	}

	tried := []string{IntlCandidate}
	if !strings.HasPrefix(raw, "+") {
		tried = Candidates(digits, r.cfg.DefaultRegion, r.cfg.Rules, r.cfg.Fallback)
	}
	res := firstValid(raw, digits, tried)

	switch {
	case res.valid != nil:
		details.ParseOK = true
		fillMetadata(details, res.valid)
		verdict.Valid = true
	case res.parsed != nil:
		details.ParseOK = true
		details.CountryCode = fmt.Sprintf("+%d", res.parsed.GetCountryCode())
		details.Region = regionFor(res.parsed, res.parsedRegion)
		details.CountryName = countryName(details.Region)
		verdict.Fail(validation.ReasonInvalidNumber, triedSummary(tried))
	case res.err != nil:
		verdict.Fail(validation.ReasonUnparseable, res.err.Error())
	default:
		verdict.Fail(validation.ReasonInvalidNumber, triedSummary(tried))
	}
	return verdict
}

type parseResult struct {
	valid        *phonenumbers.PhoneNumber
	parsed       *phonenumbers.PhoneNumber
	parsedRegion string
	err          error
}

// firstValid parses raw against each candidate in order and stops at the
// first structurally valid number. parsed keeps the first successful parse
// so a rejected number still reports where it was read; err is the last
// parse error and only matters when nothing parsed.
func firstValid(raw, digits string, candidates []string) parseResult {
	var res parseResult
	for _, region := range candidates {
		input, regionCode := raw, region
		if region == IntlCandidate {
			input, regionCode = "+"+digits, ""
		}
		num, err := phonenumbers.Parse(input, regionCode)
		if err != nil {
			res.err = err
			continue
		}
		if res.parsed == nil {
			res.parsed, res.parsedRegion = num, regionCode
		}
		if phonenumbers.IsValidNumber(num) {
			res.valid = num
			return res
		}
	}
	return res
}

// regionFor names the region of a number that failed validation, falling
// back to the parse region and then the calling code's main region.
func regionFor(num *phonenumbers.PhoneNumber, parsedRegion string) string {
	if region := phonenumbers.GetRegionCodeForNumber(num); region != "" && region != phonenumbers.UNKNOWN_REGION {
		return region
	}
	if parsedRegion != "" {
		return parsedRegion
	}
	if region := phonenumbers.GetRegionCodeForCountryCode(int(num.GetCountryCode())); region != phonenumbers.UNKNOWN_REGION {
		return region
	}
	return ""
}

func fillMetadata(details *validation.PhoneDetails, num *phonenumbers.PhoneNumber) {
	details.E164 = phonenumbers.Format(num, phonenumbers.E164)
	details.International = phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
	details.National = phonenumbers.Format(num, phonenumbers.NATIONAL)
	details.CountryCode = fmt.Sprintf("+%d", num.GetCountryCode())
	details.Region = phonenumbers.GetRegionCodeForNumber(num)
	details.CountryName = countryName(details.Region)
	details.NumberType = TypeName(phonenumbers.GetNumberType(num))

	details.Carrier = unknownCarrier
	if carrier, err := phonenumbers.GetCarrierForNumber(num, metadataLanguage); err == nil && carrier != "" {
		details.Carrier = carrier
	}
	if location, err := phonenumbers.GetGeocodingForNumber(num, metadataLanguage); err == nil {
		details.Location = location
	}
	if zones, err := phonenumbers.GetTimezonesForNumber(num); err == nil {
		details.Timezones = append([]string(nil), zones...)
	}
}

func countryName(region string) string {
	if region == "" {
		return ""
	}
	tag, err := language.ParseRegion(region)
	if err != nil {
		return region
	}
	if name := display.English.Regions().Name(tag); name != "" {
		return name
	}
	return region
}

// TypeName maps the library's number type onto display names.
func TypeName(t phonenumbers.PhoneNumberType) string {
	switch t {
	case phonenumbers.FIXED_LINE:
		return "Fixed Line"
	case phonenumbers.MOBILE:
		return "Mobile"
	case phonenumbers.FIXED_LINE_OR_MOBILE:
		return "Fixed Line or Mobile"
	case phonenumbers.TOLL_FREE:
		return "Toll Free"
	case phonenumbers.PREMIUM_RATE:
		return "Premium Rate"
	case phonenumbers.SHARED_COST:
		return "Shared Cost"
	case phonenumbers.VOIP:
		return "VoIP"
	case phonenumbers.PERSONAL_NUMBER:
		return "Personal Number"
	case phonenumbers.PAGER:
		return "Pager"
	case phonenumbers.UAN:
		return "UAN"
	case phonenumbers.VOICEMAIL:
		return "Voicemail"
	default:
		return "Unknown"
	}
}

func triedSummary(regions []string) string {
	shown := regions
	if len(shown) > maxRegionsInError {
		shown = shown[:maxRegionsInError]
	}
	msg := "no valid parse for regions " + strings.Join(shown, ", ")
	if extra := len(regions) - len(shown); extra > 0 {
		msg += fmt.Sprintf(" (+%d more)", extra)
	}
	return msg
}

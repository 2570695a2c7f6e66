package phone

import "regexp"

// IntlCandidate is the pseudo-region meaning "re-parse the digits with a
// leading '+' and no region".
const IntlCandidate = "+"

// RegionRule maps a digit pattern to the regions worth trying first.
// Patterns run against the digits of the input with formatting removed.
type RegionRule struct {
	Name    string
	Pattern *regexp.Regexp
	Regions []string
}

// DefaultRules are evaluated in order; every matching rule contributes its
// regions to the candidate list.
var DefaultRules = []RegionRule{
	{Name: "nanp-10", Pattern: regexp.MustCompile(`^[2-9]\d{2}[2-9]\d{6}$`), Regions: []string{"US", "CA"}},
	{Name: "nanp-11", Pattern: regexp.MustCompile(`^1[2-9]\d{2}[2-9]\d{6}$`), Regions: []string{"US", "CA"}},
	{Name: "in-mobile", Pattern: regexp.MustCompile(`^[6-9]\d{9}$`), Regions: []string{"IN"}},
	{Name: "gb-mobile", Pattern: regexp.MustCompile(`^07\d{9}$`), Regions: []string{"GB"}},
	{Name: "au-mobile", Pattern: regexp.MustCompile(`^04\d{8}$`), Regions: []string{"AU"}},
	{Name: "trunk-11", Pattern: regexp.MustCompile(`^0\d{10}$`), Regions: []string{"GB", "IN", "NG"}},
	{Name: "trunk-10", Pattern: regexp.MustCompile(`^0\d{9}$`), Regions: []string{"AU", "FR", "ZA", "DE"}},
	{Name: "country-code-prefixed", Pattern: regexp.MustCompile(`^(?:44|61|91|49|33|27|234|52|55|63)\d{8,11}$`), Regions: []string{IntlCandidate}},
}

// DefaultFallback is tried after the rule-derived candidates, in order.
var DefaultFallback = []string{
	"US", "GB", "IN", "CA", "AU",
	"DE", "FR", "BR", "MX", "NG", "PK", "ID", "PH", "ZA",
	IntlCandidate,
}

// Candidates builds the ordered, de-duplicated region list for digits.
func Candidates(digits, defaultRegion string, rules []RegionRule, fallback []string) []string {
	out := make([]string, 0, len(fallback)+4)
	seen := make(map[string]struct{}, len(fallback)+4)
	add := func(region string) {
		if region == "" {
			return
		}
		if _, ok := seen[region]; ok {
			return
		}
		seen[region] = struct{}{}
		out = append(out, region)
	}
	add(defaultRegion)
	for _, rule := range rules {
		if rule.Pattern != nil && rule.Pattern.MatchString(digits) {
			for _, region := range rule.Regions {
				add(region)
			}
		}
	}
	for _, region := range fallback {
		add(region)
	}
	return out
}

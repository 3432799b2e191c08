package legal

import (
	"regexp"
	"sort"
	"strings"
)

// Extractor pulls a clause value out of lower-cased document text.
type Extractor func(lower string) string

const notAvailable = "N/A"

var (
	interestRe     = regexp.MustCompile(`(\d{1,2}\.\d{1,2}%|\d{1,2}%)(\s*(p\.?a\.?|per annum)?)`)
	monthsRe       = regexp.MustCompile(`\d{1,3}\s*months?`)
	currencyRe     = regexp.MustCompile(`(inr|rs\.?|₹|usd|\$|eur|€|gbp|£)\s?\d[\d,]*(\.\d+)?`)
	jurisdictionRe = regexp.MustCompile(`(jurisdiction|court of|governing law)[^.\n]+`)
)

// families maps a family tag to its extractor.
var families = map[string]Extractor{
	"interest":        interest,
	"repayment":       repayment,
	"amount":          amount,
	"collateral":      collateral,
	"default":         mentions("Default or termination conditions mentioned", "default", "non-payment", "breach", "terminate", "repayable on demand"),
	"confidentiality": mentions("Confidentiality clause present", "confidential", "non-disclosure", "proprietary"),
	"payment":         mentions("Payment terms mentioned", "payment", "invoice", "fees", "charges", "compensation"),
	"ip":              mentions("IP ownership clause found", "intellectual property", "copyright", "ownership"),
	"scope":           mentions("Scope/services clause found", "scope", "services"),
	"jurisdiction":    jurisdiction,
	"liability":       mentions("Liability/indemnity clause present", "liability", "indemnify", "damages", "loss"),
	"none":            func(string) string { return notAvailable },
}

// clauseFamilies resolves well-known clause names to a family.
var clauseFamilies = map[string]string{
	"interest_rate":            "interest",
	"apr":                      "interest",
	"repayment":                "repayment",
	"tenure":                   "repayment",
	"installment":              "repayment",
	"loan_amount":              "amount",
	"principal_amount":         "amount",
	"collateral":               "collateral",
	"security":                 "collateral",
	"default":                  "default",
	"termination":              "default",
	"confidentiality":          "confidentiality",
	"confidential_information": "confidentiality",
	"payment_terms":            "payment",
	"fees":                     "payment",
	"intellectual_property":    "ip",
	"ip":                       "ip",
	"scope_of_work":            "scope",
	"services":                 "scope",
	"governing_law":            "jurisdiction",
	"jurisdiction":             "jurisdiction",
	"liability":                "liability",
	"indemnity":                "liability",
}

// resolve returns the family for a clause: the explicit tag when set, otherwise the clause name.
func resolve(clause, explicit string) (string, Extractor, bool) {
	family := explicit
	if family == "" {
		family = clauseFamilies[clause]
	}
	fn, ok := families[family]
	return family, fn, ok
}

func interest(lower string) string {
	if m := interestRe.FindString(lower); m != "" {
		return m
	}
	return notAvailable
}

func repayment(lower string) string {
	found := append(monthsRe.FindAllString(lower, -1), currencyRe.FindAllString(lower, -1)...)
	if len(found) == 0 {
		return notAvailable
	}
	return strings.Join(found, ", ")
}

func amount(lower string) string {
	if m := currencyRe.FindString(lower); m != "" {
		return m
	}
	return notAvailable
}

func collateral(lower string) string {
	if strings.Contains(lower, "security") && strings.Contains(lower, "na") {
		return "No collateral required"
	}
	if containsAny(lower, "mortgage", "pledge", "guarantee", "lien") {
		return "Collateral/security clause mentioned"
	}
	return notAvailable
}

func jurisdiction(lower string) string {
	if m := jurisdictionRe.FindString(lower); m != "" {
		return m
	}
	return "Missing"
}

func mentions(value string, terms ...string) Extractor {
	return func(lower string) string {
		if containsAny(lower, terms...) {
			return value
		}
		return notAvailable
	}
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func familyNames() []string {
	out := make([]string, 0, len(families))
	for name := range families {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

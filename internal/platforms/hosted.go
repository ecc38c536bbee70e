package platforms

import (
	"net/url"
	"strings"
)

// HostedValidator accepts URLs whose host matches one of a fixed set of
// domains, exactly or by suffix. Platforms without a stable media-id scheme
// are validated at the host level only; the backend resolves the rest.
type HostedValidator struct {
	platform Platform
	domains  []string
}

// NewHostedValidator creates a validator for a platform served from the
// given domains.
func NewHostedValidator(platform Platform, domains ...string) *HostedValidator {
	return &HostedValidator{platform: platform, domains: domains}
}

// Platform returns the platform for this validator
func (v *HostedValidator) Platform() Platform {
	return v.platform
}

// CanHandle returns true if the URL host matches one of the validator's domains
func (v *HostedValidator) CanHandle(rawURL string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	for _, d := range v.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Validate checks scheme and host and returns the platform match
func (v *HostedValidator) Validate(rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ValidationResult{
			Valid:    false,
			Platform: v.platform,
			URL:      rawURL,
			Error:    "invalid URL format",
		}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ValidationResult{
			Valid:    false,
			Platform: v.platform,
			URL:      rawURL,
			Error:    "invalid URL scheme",
		}
	}

	if !v.CanHandle(rawURL) {
		return ValidationResult{
			Valid:    false,
			Platform: v.platform,
			URL:      rawURL,
			Error:    "host does not match platform",
		}
	}

	return ValidationResult{
		Valid:    true,
		Platform: v.platform,
		URL:      rawURL,
	}
}

// Host extracts the normalized host of a URL ("" when unparsable).
func Host(rawURL string) string {
	return hostOf(rawURL)
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	return host
}

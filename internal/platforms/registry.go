package platforms

import "sync"

// Registry manages URL validators
type Registry struct {
	mu         sync.RWMutex
	validators []Validator
}

// NewRegistry creates a new validator registry
func NewRegistry() *Registry {
	return &Registry{
		validators: make([]Validator, 0),
	}
}

// Register adds a validator to the registry
func (r *Registry) Register(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators = append(r.validators, v)
}

// Validate finds the appropriate validator and validates the URL
func (r *Registry) Validate(url string) ValidationResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.validators {
		if v.CanHandle(url) {
			return v.Validate(url)
		}
	}

	return ValidationResult{
		Valid:    false,
		Platform: PlatformUnknown,
		URL:      url,
		Error:    "unsupported URL format",
	}
}

// Detect returns the platform a URL belongs to without full validation
func (r *Registry) Detect(url string) Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.validators {
		if v.CanHandle(url) {
			return v.Platform()
		}
	}
	return PlatformUnknown
}

// SupportedPlatforms returns all platforms registered in the registry
func (r *Registry) SupportedPlatforms() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platforms := make([]Platform, 0, len(r.validators))
	for _, v := range r.validators {
		platforms = append(platforms, v.Platform())
	}
	return platforms
}

// DefaultRegistry creates a registry with all built-in validators
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewYouTubeValidator())
	r.Register(NewHostedValidator(PlatformTikTok, "tiktok.com"))
	r.Register(NewHostedValidator(PlatformTwitter, "twitter.com", "x.com"))
	r.Register(NewHostedValidator(PlatformInstagram, "instagram.com"))
	r.Register(NewHostedValidator(PlatformFacebook, "facebook.com", "fb.watch"))
	r.Register(NewHostedValidator(PlatformReddit, "reddit.com"))
	r.Register(NewHostedValidator(PlatformVimeo, "vimeo.com"))
	r.Register(NewHostedValidator(PlatformDailymotion, "dailymotion.com"))
	return r
}

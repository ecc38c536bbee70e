package platforms

// Platform identifies the service a URL belongs to
type Platform string

const (
	PlatformYouTube     Platform = "youtube"
	PlatformTikTok      Platform = "tiktok"
	PlatformTwitter     Platform = "twitter"
	PlatformInstagram   Platform = "instagram"
	PlatformFacebook    Platform = "facebook"
	PlatformReddit      Platform = "reddit"
	PlatformVimeo       Platform = "vimeo"
	PlatformDailymotion Platform = "dailymotion"
	PlatformUnknown     Platform = "unknown"
)

// ValidationResult contains the result of URL validation
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Platform  Platform `json:"platform"`
	MediaID   string   `json:"media_id,omitempty"`
	MediaType string   `json:"media_type,omitempty"`
	URL       string   `json:"url"`
	Canonical string   `json:"canonical_url,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Validator defines the interface for URL validators
type Validator interface {
	// Platform returns the platform this validator handles
	Platform() Platform

	// CanHandle returns true if this validator can handle the given URL
	CanHandle(url string) bool

	// Validate validates the URL and extracts relevant information
	Validate(url string) ValidationResult
}

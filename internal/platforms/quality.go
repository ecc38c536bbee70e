package platforms

import (
	"regexp"
	"strconv"
)

// qualityLabels maps the labels offered by the UI to pixel heights.
var qualityLabels = map[string]int{
	"144p": 144, "240p": 240, "360p": 360, "480p": 480,
	"720p": 720, "1080p": 1080, "1440p": 1440, "2160p": 2160,
	"2K": 1440, "4K": 2160, "8K": 4320,
}

var digitsPattern = regexp.MustCompile(`\d+`)

// DefaultQualityHeight is assumed when a label can't be parsed.
const DefaultQualityHeight = 720

// ParseQuality converts a quality label to a pixel height. Unknown labels
// containing digits fall back to the digits; anything else defaults to 720.
func ParseQuality(label string) int {
	if h, ok := qualityLabels[label]; ok {
		return h
	}
	if m := digitsPattern.FindString(label); m != "" {
		if h, err := strconv.Atoi(m); err == nil {
			return h
		}
	}
	return DefaultQualityHeight
}

// KnownQualities lists the labels the UI offers, best first.
func KnownQualities() []string {
	return []string{"4K", "2K", "1080p", "720p", "480p", "360p", "240p", "144p"}
}

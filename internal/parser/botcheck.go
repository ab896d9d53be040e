package parser

import "strings"

var botCheckMarkers = []string{
	"captchacharacters",
	"/errors/validatecaptcha",
	"enter the characters you see below",
	"sorry, we just need to make sure you're not a robot",
	"to discuss automated access to amazon data",
	"klicke auf die schaltfläche unten",
	"geben sie die zeichen unten ein",
}

// IsBotCheck reports whether the page is Amazon's robot check instead of
// the requested content.
func IsBotCheck(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range botCheckMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return strings.Contains(lower, "<title>robot check</title>")
}

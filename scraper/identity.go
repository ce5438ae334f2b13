package scraper

import (
	"math/rand/v2"
	"net/http"
)

// Identity decides which browser a request claims to come from.
type Identity struct {
	userAgents []string
	headers    http.Header
	intn       func(int) int
}

// NewIdentity builds an identity that rotates through userAgents and sends a
// fixed set of browser fingerprint headers.
func NewIdentity(userAgents []string, referer string) *Identity {
	headers := http.Header{}
	headers.Set("Accept-Language", "en-US,en;q=0.9")
	headers.Set("Sec-Ch-Ua", `"Not_A Brand";v="99", "Google Chrome";v="109", "Chromium";v="109"`)
	headers.Set("Sec-Ch-Ua-Mobile", "?0")
	headers.Set("Sec-Ch-Ua-Platform", `"macOS"`)
	if referer != "" {
		headers.Set("Referer", referer)
	}
	return &Identity{
		userAgents: append([]string(nil), userAgents...),
		headers:    headers,
		intn:       rand.IntN,
	}
}

// UserAgent picks a user agent uniformly at random, or "" when none is configured.
func (i *Identity) UserAgent() string {
	if len(i.userAgents) == 0 {
		return ""
	}
	return i.userAgents[i.intn(len(i.userAgents))]
}

// Apply writes the static headers and a freshly chosen user agent into h.
func (i *Identity) Apply(h http.Header) {
	for key, values := range i.headers {
		h[key] = append([]string(nil), values...)
	}
	if ua := i.UserAgent(); ua != "" {
		h.Set("User-Agent", ua)
	}
}

package service

import (
	"net/url"
	"strings"

	"github.com/signly/signage-api/internal/models"
	appErrors "github.com/signly/signage-api/pkg/errors"
)

// DefaultLiveProviders is the provider allow-list applied when none is
// configured.
var DefaultLiveProviders = []string{"youtube.com", "youtu.be", "vimeo.com", "twitch.tv", "facebook.com"}

// normalizeLiveLinks validates, deduplicates and caps a live link list.
// Links must be http(s) URLs hosted by an allowed provider.
func normalizeLiveLinks(links []string, providers []string, maxLinks int) ([]string, error) {
	if len(providers) == 0 {
		providers = DefaultLiveProviders
	}
	if maxLinks <= 0 || maxLinks > models.MaxBatchSlots {
		maxLinks = models.MaxBatchSlots
	}

	seen := make(map[string]struct{}, len(links))
	result := make([]string, 0, len(links))
	for _, raw := range links {
		link := strings.TrimSpace(raw)
		if link == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		parsed, err := url.Parse(link)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, appErrors.Clone(appErrors.ErrValidation, "live stream links must be http(s) URLs")
		}
		if !hostAllowed(parsed.Hostname(), providers) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "live stream link provider not allowed: "+parsed.Hostname())
		}
		seen[link] = struct{}{}
		result = append(result, link)
		if len(result) > maxLinks {
			return nil, appErrors.Clone(appErrors.ErrValidation, "too many live stream links")
		}
	}
	return result, nil
}

func hostAllowed(host string, providers []string) bool {
	host = strings.ToLower(host)
	for _, provider := range providers {
		provider = strings.ToLower(strings.TrimSpace(provider))
		if provider == "" {
			continue
		}
		if host == provider || strings.HasSuffix(host, "."+provider) {
			return true
		}
	}
	return false
}

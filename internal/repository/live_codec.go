package repository

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// liveLinksMarker prefixes encoded multi-link payloads stored in the legacy
// single-text link column. Values without the marker are plain bare URLs
// written before multi-link support existed.
const liveLinksMarker = "multi::"

type liveLinkPayload struct {
	Link     *string  `json:"link"`
	Links    []string `json:"links"`
	Category *string  `json:"category"`
}

// LiveLinkCodec packs the multi-value broadcast state (primary link, link
// list, category scope) into one legacy-compatible text field and back.
type LiveLinkCodec struct{}

// Encode serialises the state for the legacy link column. It returns nil
// when there is nothing to store; everything else is written in the marked
// multi-link format. Decode still accepts plain bare links written by
// older writers.
func (LiveLinkCodec) Encode(primaryLink *string, categoryID *string, allLinks []string) *string {
	links := dedupeLinks(allLinks)
	primary := primaryLink
	if primary == nil && len(links) > 0 {
		primary = &links[0]
	}
	if primary == nil && categoryID == nil && len(links) == 0 {
		return nil
	}
	if len(links) == 0 && primary != nil {
		links = []string{*primary}
	}

	body, err := json.Marshal(liveLinkPayload{Link: primary, Links: links, Category: categoryID})
	if err != nil {
		// Marshal of plain strings cannot fail; degrade to the bare link.
		if primary != nil {
			plain := *primary
			return &plain
		}
		return nil
	}
	encoded := liveLinksMarker + base64.RawURLEncoding.EncodeToString(body)
	return &encoded
}

// Decode never fails: marked payloads that do not parse degrade to treating
// the remainder as a single bare link, and unmarked values are one bare URL.
func (LiveLinkCodec) Decode(raw *string) (link *string, links []string, category *string) {
	if raw == nil || *raw == "" {
		return nil, []string{}, nil
	}
	value := *raw
	if !strings.HasPrefix(value, liveLinksMarker) {
		bare := value
		return &bare, []string{value}, nil
	}

	remainder := strings.TrimPrefix(value, liveLinksMarker)
	body, err := base64.RawURLEncoding.DecodeString(remainder)
	if err != nil {
		bare := remainder
		return &bare, []string{remainder}, nil
	}
	var payload liveLinkPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		bare := remainder
		return &bare, []string{remainder}, nil
	}

	links = payload.Links
	if links == nil {
		links = []string{}
	}
	link = payload.Link
	if link == nil && len(links) > 0 {
		link = &links[0]
	}
	if len(links) == 0 && link != nil {
		links = []string{*link}
	}
	return link, links, payload.Category
}

func dedupeLinks(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

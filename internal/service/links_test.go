package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLiveLinks(t *testing.T) {
	links, err := normalizeLiveLinks([]string{
		"https://youtube.com/watch?v=a",
		"  https://vimeo.com/123  ",
		"https://youtube.com/watch?v=a",
		"",
	}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://youtube.com/watch?v=a", "https://vimeo.com/123"}, links)
}

func TestNormalizeLiveLinksRejectsUnknownProvider(t *testing.T) {
	_, err := normalizeLiveLinks([]string{"https://example.com/stream"}, nil, 0)
	require.Error(t, err)
}

func TestNormalizeLiveLinksRejectsNonHTTP(t *testing.T) {
	_, err := normalizeLiveLinks([]string{"ftp://youtube.com/video"}, nil, 0)
	require.Error(t, err)

	_, err = normalizeLiveLinks([]string{"javascript:alert(1)"}, nil, 0)
	require.Error(t, err)
}

func TestNormalizeLiveLinksAllowsSubdomains(t *testing.T) {
	links, err := normalizeLiveLinks([]string{"https://www.youtube.com/watch?v=a"}, nil, 0)
	require.NoError(t, err)
	assert.Len(t, links, 1)

	// A lookalike host is not a subdomain.
	_, err = normalizeLiveLinks([]string{"https://evilyoutube.com/watch"}, nil, 0)
	require.Error(t, err)
}

func TestNormalizeLiveLinksCustomProviders(t *testing.T) {
	links, err := normalizeLiveLinks([]string{"https://stream.internal.example/live"}, []string{"internal.example"}, 0)
	require.NoError(t, err)
	assert.Len(t, links, 1)

	_, err = normalizeLiveLinks([]string{"https://youtube.com/watch?v=a"}, []string{"internal.example"}, 0)
	require.Error(t, err)
}

func TestNormalizeLiveLinksEnforcesCap(t *testing.T) {
	many := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		many = append(many, fmt.Sprintf("https://youtube.com/watch?v=%d", i))
	}
	_, err := normalizeLiveLinks(many, nil, 24)
	require.Error(t, err)

	links, err := normalizeLiveLinks(many[:24], nil, 24)
	require.NoError(t, err)
	assert.Len(t, links, 24)
}

func TestNormalizeLiveLinksEmpty(t *testing.T) {
	links, err := normalizeLiveLinks(nil, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, links)
}

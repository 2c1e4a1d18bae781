package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestLiveLinkCodecRoundTrip(t *testing.T) {
	codec := LiveLinkCodec{}

	links := []string{"https://youtube.com/watch?v=a", "https://vimeo.com/123"}
	encoded := codec.Encode(strPtr(links[0]), strPtr("cat-1"), links)
	require.NotNil(t, encoded)
	assert.True(t, strings.HasPrefix(*encoded, liveLinksMarker))

	link, decoded, category := codec.Decode(encoded)
	require.NotNil(t, link)
	assert.Equal(t, links[0], *link)
	assert.Equal(t, links, decoded)
	require.NotNil(t, category)
	assert.Equal(t, "cat-1", *category)
}

func TestLiveLinkCodecEncodeEmpty(t *testing.T) {
	codec := LiveLinkCodec{}
	assert.Nil(t, codec.Encode(nil, nil, nil))
	assert.Nil(t, codec.Encode(nil, nil, []string{}))
}

func TestLiveLinkCodecEncodeDeduplicates(t *testing.T) {
	codec := LiveLinkCodec{}
	encoded := codec.Encode(nil, nil, []string{
		"https://twitch.tv/a",
		"https://twitch.tv/a",
		"https://twitch.tv/b",
	})
	require.NotNil(t, encoded)

	link, links, _ := codec.Decode(encoded)
	require.NotNil(t, link)
	assert.Equal(t, "https://twitch.tv/a", *link)
	assert.Equal(t, []string{"https://twitch.tv/a", "https://twitch.tv/b"}, links)
}

func TestLiveLinkCodecDecodeBareLink(t *testing.T) {
	codec := LiveLinkCodec{}
	link, links, category := codec.Decode(strPtr("https://youtu.be/xyz"))
	require.NotNil(t, link)
	assert.Equal(t, "https://youtu.be/xyz", *link)
	assert.Equal(t, []string{"https://youtu.be/xyz"}, links)
	assert.Nil(t, category)
}

func TestLiveLinkCodecDecodeNil(t *testing.T) {
	codec := LiveLinkCodec{}
	link, links, category := codec.Decode(nil)
	assert.Nil(t, link)
	assert.Empty(t, links)
	assert.Nil(t, category)

	link, links, category = codec.Decode(strPtr(""))
	assert.Nil(t, link)
	assert.Empty(t, links)
	assert.Nil(t, category)
}

func TestLiveLinkCodecDecodeCorruptedPayload(t *testing.T) {
	codec := LiveLinkCodec{}

	// Invalid base64 after the marker degrades to a bare link.
	link, links, category := codec.Decode(strPtr(liveLinksMarker + "!!not-base64!!"))
	require.NotNil(t, link)
	assert.Equal(t, "!!not-base64!!", *link)
	assert.Equal(t, []string{"!!not-base64!!"}, links)
	assert.Nil(t, category)

	// Valid base64 that is not JSON also degrades instead of failing.
	link, links, _ = codec.Decode(strPtr(liveLinksMarker + "bm90LWpzb24"))
	require.NotNil(t, link)
	assert.Equal(t, []string{*link}, links)
}

func TestLiveLinkCodecEncodePrimaryOnly(t *testing.T) {
	codec := LiveLinkCodec{}
	encoded := codec.Encode(strPtr("https://youtube.com/watch?v=solo"), nil, nil)
	require.NotNil(t, encoded)

	link, links, category := codec.Decode(encoded)
	require.NotNil(t, link)
	assert.Equal(t, "https://youtube.com/watch?v=solo", *link)
	assert.Equal(t, []string{"https://youtube.com/watch?v=solo"}, links)
	assert.Nil(t, category)
}

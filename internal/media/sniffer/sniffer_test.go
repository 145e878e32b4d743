package sniffer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectHead(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want MediaType
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00}, TypeJPEG},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0}, TypePNG},
		{"gif", []byte("GIF89a\x01\x00"), TypeGIF},
		{"webp", []byte("RIFF\x24\x00\x00\x00WEBPVP8 "), TypeWEBP},
		{"avif", []byte("\x00\x00\x00\x1cftypavif\x00\x00\x00\x00"), TypeAVIF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectHead(tt.head)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Type)
		})
	}
}

func TestDetectHeadRejects(t *testing.T) {
	for _, head := range [][]byte{
		nil,
		[]byte("<svg xmlns=\"http://www.w3.org/2000/svg\"><script/></svg>"),
		[]byte("%PDF-1.7"),
	} {
		_, err := DetectHead(head)
		assert.ErrorIs(t, err, ErrUnknownType)
	}
}

func TestDetectReturnsHead(t *testing.T) {
	payload := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{1}, 1000)...)

	res, head, err := Detect(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.MIME)
	assert.Len(t, head, HeadSize)
}

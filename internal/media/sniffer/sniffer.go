// Package sniffer identifies raster image uploads from their leading bytes.
package sniffer

import (
	"bytes"
	"errors"
	"io"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
	TypeAVIF MediaType = "avif"
)

// HeadSize is how many bytes Detect reads.
const HeadSize = 512

var ErrUnknownType = errors.New("unknown media type")

type Result struct {
	Type MediaType
	MIME string
}

// Detect reads the head of r. The returned bytes must be replayed in front of
// the rest of r by the caller.
func Detect(r io.Reader) (Result, []byte, error) {
	head := make([]byte, HeadSize)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, nil, err
	}
	head = head[:n]

	result, err := DetectHead(head)
	return result, head, err
}

// DetectHead ignores the declared content type. SVG is not accepted since it can
// carry script.
func DetectHead(head []byte) (Result, error) {
	switch {
	case isJPEG(head):
		return Result{Type: TypeJPEG, MIME: "image/jpeg"}, nil
	case isPNG(head):
		return Result{Type: TypePNG, MIME: "image/png"}, nil
	case isGIF(head):
		return Result{Type: TypeGIF, MIME: "image/gif"}, nil
	case isWEBP(head):
		return Result{Type: TypeWEBP, MIME: "image/webp"}, nil
	case isAVIF(head):
		return Result{Type: TypeAVIF, MIME: "image/avif"}, nil
	}
	return Result{}, ErrUnknownType
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isGIF(head []byte) bool {
	return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}

// ISO-BMFF: 4-byte box size, then "ftyp" and the major brand.
func isAVIF(head []byte) bool {
	if len(head) < 12 || !bytes.Equal(head[4:8], []byte("ftyp")) {
		return false
	}
	return bytes.Contains(head[8:], []byte("avif")) || bytes.Contains(head[8:], []byte("avis"))
}

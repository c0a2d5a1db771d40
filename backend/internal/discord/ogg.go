package discord

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const oggHeaderSize = 27

var (
	oggCapturePattern = []byte("OggS")
	opusHeadMagic     = []byte("OpusHead")
	opusTagsMagic     = []byte("OpusTags")
)

// OggOpusReader splits an Ogg/Opus stream into raw Opus packets, the unit Discord expects
// on a voice connection. Header packets are skipped.
type OggOpusReader struct {
	r       io.Reader
	header  [oggHeaderSize]byte
	pending [][]byte // complete packets from the current page
	partial []byte   // packet continued onto the next page
}

// NewOggOpusReader wraps an Ogg/Opus stream
func NewOggOpusReader(r io.Reader) *OggOpusReader {
	return &OggOpusReader{r: r}
}

// NextPacket returns the next audio packet, or io.EOF at the end of the stream
func (o *OggOpusReader) NextPacket() ([]byte, error) {
	for {
		for len(o.pending) > 0 {
			packet := o.pending[0]
			o.pending = o.pending[1:]
			if bytes.HasPrefix(packet, opusHeadMagic) || bytes.HasPrefix(packet, opusTagsMagic) {
				continue
			}
			return packet, nil
		}

		if err := o.readPage(); err != nil {
			return nil, err
		}
	}
}

func (o *OggOpusReader) readPage() error {
	if _, err := io.ReadFull(o.r, o.header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("truncated ogg page header: %w", err)
		}
		return err
	}
	if !bytes.Equal(o.header[0:4], oggCapturePattern) {
		return fmt.Errorf("invalid ogg capture pattern %q", o.header[0:4])
	}

	segCount := int(o.header[26])
	if segCount == 0 {
		return nil
	}

	segTable := make([]byte, segCount)
	if _, err := io.ReadFull(o.r, segTable); err != nil {
		return fmt.Errorf("read ogg segment table: %w", err)
	}

	bodySize := 0
	for _, seg := range segTable {
		bodySize += int(seg)
	}
	body := make([]byte, bodySize)
	if _, err := io.ReadFull(o.r, body); err != nil {
		return fmt.Errorf("read ogg page body: %w", err)
	}

	// A segment shorter than 255 bytes ends a packet; a trailing 255 continues it on the next page
	offset := 0
	for _, seg := range segTable {
		o.partial = append(o.partial, body[offset:offset+int(seg)]...)
		offset += int(seg)
		if seg < 255 {
			if len(o.partial) > 0 {
				o.pending = append(o.pending, o.partial)
			}
			o.partial = nil
		}
	}
	return nil
}

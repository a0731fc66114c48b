package rci

import (
	"errors"

	"github.com/mash-protocol/rci-go/pkg/ber"
)

// peek returns at least n unread bytes. While a token straddles chunks its
// bytes are gathered in spill storage, bounded by maxContent.
func (s *session) peek(n int) ([]byte, error) {
	for {
		avail := len(s.in) - s.pos
		if len(s.spill) == 0 && avail >= n {
			return s.in[s.pos:], nil
		}
		if n > s.maxContent {
			return nil, s.fail(ErrorBadDescriptor, HintContentSize)
		}
		take := min(n-len(s.spill), avail)
		if take > 0 {
			s.spill = append(s.spill, s.in[s.pos:s.pos+take]...)
			s.pos += take
		}
		if len(s.spill) >= n {
			return s.spill, nil
		}
		if s.final {
			return nil, s.fail(ErrorBadDescriptor, HintTruncated)
		}
		if err := s.wait(waitInput); err != nil {
			return nil, err
		}
	}
}

// consume drops n bytes of the view returned by peek.
func (s *session) consume(n int) {
	if len(s.spill) == 0 {
		s.pos += n
		return
	}
	rest := copy(s.spill, s.spill[n:])
	s.spill = s.spill[:rest]
}

func (s *session) readModifier() (ber.Modifier, error) {
	n := 1
	for {
		b, err := s.peek(n)
		if err != nil {
			return ber.Modifier{}, err
		}
		m, err := ber.DecodeModifier(b)
		if errors.Is(err, ber.ErrShortBuffer) {
			n = m.Size
			continue
		}
		if err != nil {
			return ber.Modifier{}, s.fail(ErrorBadDescriptor, "")
		}
		s.consume(m.Size)
		return m, nil
	}
}

// readUint reads a modifier that must be an ordinary 32-bit value.
func (s *session) readUint() (uint32, error) {
	m, err := s.readModifier()
	if err != nil {
		return 0, err
	}
	if m.Kind != ber.KindValue || m.Value > 0xFFFFFFFF {
		return 0, s.fail(ErrorBadDescriptor, "")
	}
	return uint32(m.Value), nil
}

// readText reads n raw bytes. Texts longer than maxContent are refused
// however the bytes arrive.
func (s *session) readText(n int) (string, error) {
	if n == 0 {
		return "", nil
	}
	if n > s.maxContent {
		return "", s.fail(ErrorBadDescriptor, HintContentSize)
	}
	b, err := s.peek(n)
	if err != nil {
		return "", err
	}
	text := string(b[:n])
	s.consume(n)
	return text, nil
}

// readString reads a length-prefixed string of at most limit bytes.
func (s *session) readString(limit int) (string, error) {
	n, err := s.readUint()
	if err != nil {
		return "", err
	}
	if limit > 0 && int(n) > limit {
		return "", s.fail(ErrorBadDescriptor, HintContentSize)
	}
	return s.readText(int(n))
}

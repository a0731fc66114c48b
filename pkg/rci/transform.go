package rci

import (
	"golang.org/x/text/transform"
)

// maxBusyRetries bounds how often Transform retries a busy callback within
// one call.
const maxBusyRetries = 1 << 16

// Transformer runs one exchange per input stream through the
// golang.org/x/text/transform interface, so a whole request can be processed
// with transform.Bytes or streamed with transform.NewReader.
type Transformer struct {
	engine  *Engine
	started bool
	done    bool
}

var _ transform.Transformer = (*Transformer)(nil)

// NewTransformer returns a Transformer driving e.
func NewTransformer(e *Engine) *Transformer {
	return &Transformer{engine: e}
}

// Transform implements transform.Transformer.
func (t *Transformer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	if t.done {
		return 0, len(src), nil
	}
	action := SessionActive
	if !t.started {
		action = SessionStart
	}

	for busy := 0; ; {
		if nDst == len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		r := t.engine.Step(action, Input{Data: src[nSrc:], Final: atEOF}, dst[nDst:])
		if r.Status == StatusInternalError {
			return nDst, nSrc, ErrInternal
		}
		if action == SessionStart && r.Status == StatusBusy && !t.engine.Active() {
			busy++
			if busy > maxBusyRetries {
				return nDst, nSrc, ErrBusy
			}
			continue
		}
		t.started = true
		action = SessionActive
		nSrc += r.Read
		nDst += r.Written

		switch r.Status {
		case StatusComplete:
			t.done = true
			return nDst, len(src), nil
		case StatusError:
			t.done = true
			return nDst, len(src), ErrAborted
		case StatusMoreInput:
			return nDst, nSrc, transform.ErrShortSrc
		case StatusFlushOutput:
			return nDst, nSrc, transform.ErrShortDst
		case StatusBusy:
			busy++
			if busy > maxBusyRetries {
				return nDst, nSrc, ErrBusy
			}
		}
	}
}

// Reset implements transform.Transformer. An unfinished exchange is
// cancelled.
func (t *Transformer) Reset() {
	for range maxBusyRetries {
		if t.engine.Step(SessionLost, Input{}, nil).Status != StatusBusy {
			break
		}
	}
	t.started = false
	t.done = false
}

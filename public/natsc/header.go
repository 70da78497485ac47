package natsc

import (
	"bytes"
	"fmt"
)

const (
	hdrLine     = "NATS/1.0"
	hdrCRLF     = "\r\n"
	statusHdr   = "Status"
	descrHdr    = "Description"
	noResponders = "503"
	statusLen   = 3
)

// Header represents message headers: an ordered-value multimap with
// case-sensitive keys, serialized in the NATS/1.0 inline format.
type Header map[string][]string

// Get returns the first value associated with key, or "" if none.
func (h Header) Get(key string) string {
	if h == nil {
		return _EMPTY
	}
	if v := h[key]; len(v) > 0 {
		return v[0]
	}
	return _EMPTY
}

// Values returns all values associated with key.
func (h Header) Values(key string) []string {
	return h[key]
}

// Set replaces any existing values for key.
func (h Header) Set(key, value string) {
	h[key] = []string{value}
}

// Add appends value to the values already stored for key.
func (h Header) Add(key, value string) {
	h[key] = append(h[key], value)
}

// Del removes all values for key.
func (h Header) Del(key string) {
	delete(h, key)
}

// encodeHeader renders h into wire form: the version line, one
// "Key: Value" line per value, terminated by a blank line.
func encodeHeader(h Header) []byte {
	var b bytes.Buffer
	b.WriteString(hdrLine)
	b.WriteString(hdrCRLF)
	for k, vv := range h {
		for _, v := range vv {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString(hdrCRLF)
		}
	}
	b.WriteString(hdrCRLF)
	return b.Bytes()
}

// decodeHeader lifts a raw header block into a Header. An inline
// status code on the version line is surfaced under the "Status" key,
// and any trailing description under "Description". Lines starting
// with space or tab continue the previous value.
func decodeHeader(raw []byte) (Header, error) {
	if !bytes.HasPrefix(raw, []byte(hdrLine)) {
		return nil, ErrBadHeaderMsg
	}
	h := Header{}

	end := bytes.Index(raw, []byte(hdrCRLF))
	if end < 0 {
		return nil, ErrBadHeaderMsg
	}
	if desc := bytes.TrimSpace(raw[len(hdrLine):end]); len(desc) > 0 {
		if len(desc) >= statusLen && isDigits(desc[:statusLen]) {
			h.Set(statusHdr, string(desc[:statusLen]))
			desc = bytes.TrimSpace(desc[statusLen:])
		}
		if len(desc) > 0 {
			h.Set(descrHdr, string(desc))
		}
	}

	var lastKey string
	for rest := raw[end+len(hdrCRLF):]; ; {
		nl := bytes.Index(rest, []byte(hdrCRLF))
		if nl < 0 {
			return nil, ErrBadHeaderMsg
		}
		line := rest[:nl]
		rest = rest[nl+len(hdrCRLF):]
		if len(line) == 0 {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			// Folded continuation of the previous value.
			if lastKey == _EMPTY {
				return nil, ErrBadHeaderMsg
			}
			vv := h[lastKey]
			vv[len(vv)-1] += " " + string(bytes.TrimSpace(line))
			continue
		}
		col := bytes.IndexByte(line, ':')
		if col <= 0 {
			return nil, fmt.Errorf("%w: malformed header line %q", ErrBadHeaderMsg, line)
		}
		lastKey = string(line[:col])
		h.Add(lastKey, string(bytes.TrimSpace(line[col+1:])))
	}
	return h, nil
}

func isDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(b) > 0
}

package codec

import (
	"sort"
	"strings"
)

// Generic is the protocol name used for lines that carry no protocol tag.
const Generic = "generic"

// Codec turns one vendor frame into a Position and back.
type Codec interface {
	Name() string
	Decode(payload []byte) (Position, error)
	Encode(p Position) ([]byte, error)
}

var codecs = map[string]Codec{
	"teltonika": teltonika{},
	"queclink":  queclink{},
	"concox":    concox{},
	Generic:     generic{},
}

// Lookup returns the codec registered under tag. The empty tag selects the
// generic delimited codec.
func Lookup(tag string) (Codec, error) {
	name := strings.ToLower(strings.TrimSpace(tag))
	if name == "" {
		name = Generic
	}
	c, ok := codecs[name]
	if !ok {
		return nil, &DecodeError{Protocol: tag, Err: ErrUnknownProtocol}
	}
	return c, nil
}

// Protocols lists the registered protocol names.
func Protocols() []string {
	out := make([]string, 0, len(codecs))
	for name := range codecs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Decode parses raw with the codec selected by tag. On failure the returned
// Position is always the zero value and the error is a *DecodeError.
func Decode(tag string, raw []byte) (Position, error) {
	c, err := Lookup(tag)
	if err != nil {
		return Position{}, err
	}
	p, err := c.Decode(raw)
	if err != nil {
		return Position{}, &DecodeError{Protocol: c.Name(), Err: err}
	}
	if p.DeviceID == "" {
		return Position{}, &DecodeError{Protocol: c.Name(), Err: malformed("empty device id")}
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = Now()
	}
	return p, nil
}

// Encode renders p in the wire format of the codec selected by tag.
func Encode(tag string, p Position) ([]byte, error) {
	c, err := Lookup(tag)
	if err != nil {
		return nil, err
	}
	return c.Encode(p)
}

// SplitFrame splits a line of the form "tag|payload". Lines without a
// separator have an empty tag.
func SplitFrame(line string) (tag, payload string) {
	tag, payload, ok := strings.Cut(line, "|")
	if !ok {
		return "", line
	}
	return strings.TrimSpace(tag), payload
}

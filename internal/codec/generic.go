package codec

import (
	"strings"
)

// generic decodes untagged lines: <id>,<lat>,<lon>[,<speed>[,<course>]].
type generic struct{}

func (generic) Name() string { return Generic }

func (generic) Decode(payload []byte) (Position, error) {
	parts := strings.Split(strings.TrimSpace(string(payload)), ",")
	if len(parts) < 3 {
		return Position{}, malformed("expected at least 3 fields, got %d", len(parts))
	}
	id := field(parts, 0)
	if id == "" {
		return Position{}, malformed("missing device id")
	}
	lat, err := requiredFloat(parts, 1, "latitude")
	if err != nil {
		return Position{}, err
	}
	lon, err := requiredFloat(parts, 2, "longitude")
	if err != nil {
		return Position{}, err
	}
	return Position{
		DeviceID:  id,
		Latitude:  lat,
		Longitude: lon,
		Speed:     optionalFloat(parts, 3),
		Course:    optionalFloat(parts, 4),
	}, nil
}

func (generic) Encode(p Position) ([]byte, error) {
	fields := []string{p.DeviceID, formatFloat(p.Latitude), formatFloat(p.Longitude)}
	switch {
	case p.Course != nil:
		fields = append(fields, formatOptional(p.Speed), formatFloat(*p.Course))
	case p.Speed != nil:
		fields = append(fields, formatFloat(*p.Speed))
	}
	return []byte(strings.Join(fields, ",")), nil
}

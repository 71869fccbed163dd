package codec

import (
	"math"
	"strconv"
	"strings"
)

// queclink field positions in a +RESP:GTFRI report.
const (
	qlDeviceID = 1
	qlLat      = 7
	qlLon      = 8
	qlSpeed    = 11
	qlCourse   = 12
)

// queclink decodes comma separated Queclink ASCII reports:
//
//	+RESP:GTFRI,<id>,,,,,,<lat>,<lon>,,,<speed>,<course>
type queclink struct{}

func (queclink) Name() string { return "queclink" }

func (queclink) Decode(payload []byte) (Position, error) {
	text := strings.TrimSuffix(strings.TrimSpace(string(payload)), "$")
	parts := strings.Split(text, ",")

	id := field(parts, qlDeviceID)
	if id == "" {
		return Position{}, malformed("missing device id at field %d", qlDeviceID)
	}
	lat, err := requiredFloat(parts, qlLat, "latitude")
	if err != nil {
		return Position{}, err
	}
	lon, err := requiredFloat(parts, qlLon, "longitude")
	if err != nil {
		return Position{}, err
	}
	return Position{
		DeviceID:  id,
		Latitude:  lat,
		Longitude: lon,
		Speed:     optionalFloat(parts, qlSpeed),
		Course:    optionalFloat(parts, qlCourse),
		Event:     String("queclink"),
	}, nil
}

func (queclink) Encode(p Position) ([]byte, error) {
	var b strings.Builder
	b.WriteString("+RESP:GTFRI,")
	b.WriteString(p.DeviceID)
	b.WriteString(",,,,,,")
	b.WriteString(formatFloat(p.Latitude))
	b.WriteByte(',')
	b.WriteString(formatFloat(p.Longitude))
	b.WriteString(",,,")
	b.WriteString(formatOptional(p.Speed))
	b.WriteByte(',')
	b.WriteString(formatOptional(p.Course))
	return []byte(b.String()), nil
}

// field returns the trimmed field at i, or "" past the end of parts.
func field(parts []string, i int) string {
	if i < 0 || i >= len(parts) {
		return ""
	}
	return strings.TrimSpace(parts[i])
}

func requiredFloat(parts []string, i int, name string) (float64, error) {
	s := field(parts, i)
	if s == "" {
		return 0, malformed("missing %s at field %d", name, i)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, malformed("%s at field %d: %v", name, i, err)
	}
	if !finite(v) {
		return 0, malformed("%s at field %d is not finite", name, i)
	}
	return v, nil
}

// optionalFloat maps missing, empty, unparsable and non-finite fields to nil.
func optionalFloat(parts []string, i int) *float64 {
	s := field(parts, i)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(v) {
		return nil
	}
	return &v
}

// finite rejects the NaN and Inf literals strconv accepts.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

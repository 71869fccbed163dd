package codec

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"telemetry-svr/internal/codec/fmxxx"
)

// teltonika decodes the JSON tag-value rendition of Teltonika AVL records:
//
//	{"id":"352093081234567","lat":19.43,"lon":-99.13,"speed":45.5,"course":180,
//	 "event":"tcp","ts":"2024-05-01T10:00:00Z","ign":true,"io":{"239":1}}
type teltonika struct{}

func (teltonika) Name() string { return "teltonika" }

type teltonikaFrame struct {
	ID     string   `json:"id"`
	Lat    float64  `json:"lat"`
	Lon    float64  `json:"lon"`
	Speed  *float64 `json:"speed,omitempty"`
	Course *float64 `json:"course,omitempty"`
	Event  *string  `json:"event,omitempty"`
	Ign    *bool    `json:"ign,omitempty"`
	TS     string   `json:"ts,omitempty"`
}

func (teltonika) Decode(payload []byte) (Position, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return Position{}, malformed("tag-value payload: %v", err)
	}
	if m == nil {
		return Position{}, malformed("tag-value payload is null")
	}

	id, err := stringField(m, "id")
	if err != nil {
		return Position{}, err
	}
	if id == "" {
		return Position{}, malformed("missing id")
	}
	lat, _, err := floatField(m, "lat")
	if err != nil {
		return Position{}, err
	}
	lon, _, err := floatField(m, "lon")
	if err != nil {
		return Position{}, err
	}

	p := Position{DeviceID: id, Latitude: lat, Longitude: lon}
	if v, ok, err := floatField(m, "speed"); err != nil {
		return Position{}, err
	} else if ok {
		p.Speed = Float(v)
	}
	if v, ok, err := floatField(m, "course"); err != nil {
		return Position{}, err
	} else if ok {
		p.Course = Float(v)
	}
	if ev, err := stringField(m, "event"); err != nil {
		return Position{}, err
	} else if ev != "" {
		p.Event = String(ev)
	}

	if v, ok := m["ign"]; ok && v != nil {
		b, isBool := v.(bool)
		if !isBool {
			return Position{}, malformed("ign is not a boolean")
		}
		p.Ignition = Bool(b)
	}
	if io, ok := m["io"].(map[string]any); ok {
		if p.Ignition == nil {
			if v, ok, err := floatField(io, strconv.Itoa(fmxxx.Ignition)); err == nil && ok {
				p.Ignition = Bool(v != 0)
			}
		}
		if p.Speed == nil {
			if v, ok, err := floatField(io, strconv.Itoa(fmxxx.VehicleSpeed)); err == nil && ok {
				p.Speed = Float(v)
			}
		}
	}

	ts, err := stringField(m, "ts")
	if err != nil {
		return Position{}, err
	}
	if ts != "" {
		t, err := parseTimestamp(ts)
		if err != nil {
			return Position{}, err
		}
		p.Timestamp = t
	}
	return p, nil
}

func (teltonika) Encode(p Position) ([]byte, error) {
	ts := p.Timestamp
	if ts.IsZero() {
		ts = Now()
	}
	return json.Marshal(teltonikaFrame{
		ID:     p.DeviceID,
		Lat:    p.Latitude,
		Lon:    p.Longitude,
		Speed:  p.Speed,
		Course: p.Course,
		Event:  p.Event,
		Ign:    p.Ignition,
		TS:     ts.UTC().Format(time.RFC3339Nano),
	})
}

// stringField accepts JSON strings and numbers; absent and null give "".
func stringField(m map[string]any, key string) (string, error) {
	switch v := m[key].(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case json.Number:
		return v.String(), nil
	default:
		return "", malformed("%s has unexpected type %T", key, v)
	}
}

// floatField accepts JSON numbers and finite numeric strings; absent and
// null report ok=false.
func floatField(m map[string]any, key string) (float64, bool, error) {
	switch v := m[key].(type) {
	case nil:
		return 0, false, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil || !finite(f) {
			return 0, false, malformed("%s: %q is not a finite number", key, v.String())
		}
		return f, true, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false, malformed("%s: %v", key, err)
		}
		if !finite(f) {
			return 0, false, malformed("%s is not finite", key)
		}
		return f, true, nil
	default:
		return 0, false, malformed("%s has unexpected type %T", key, v)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTimestamp reads device clocks; values without a zone are UTC.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, malformed("ts %q is not a timestamp", s)
}

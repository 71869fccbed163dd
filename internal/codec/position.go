package codec

import "time"

// Now stamps positions whose frame carried no timestamp.
var Now = func() time.Time { return time.Now().UTC() }

// UnknownDevice is the device id of the sentinel position returned for
// truncated binary frames.
const UnknownDevice = "unknown"

// Position is the protocol independent view of one location report.
// Optional fields are nil when the frame did not carry them.
type Position struct {
	DeviceID  string    `json:"device_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     *float64  `json:"speed,omitempty"`
	Course    *float64  `json:"course,omitempty"`
	Ignition  *bool     `json:"ignition,omitempty"`
	Event     *string   `json:"event_type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func Float(v float64) *float64 { return &v }
func Bool(v bool) *bool          { return &v }
func String(v string) *string    { return &v }

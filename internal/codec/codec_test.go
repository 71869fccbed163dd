package codec

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow(t *testing.T, at time.Time) {
	t.Helper()
	prev := Now
	Now = func() time.Time { return at }
	t.Cleanup(func() { Now = prev })
}

func TestGenericFallback(t *testing.T) {
	p, err := Decode("", []byte("dev-1,40.0,-3.0,50.0"))
	require.NoError(t, err)

	assert.Equal(t, "dev-1", p.DeviceID)
	assert.Equal(t, 40.0, p.Latitude)
	assert.Equal(t, -3.0, p.Longitude)
	require.NotNil(t, p.Speed)
	assert.Equal(t, 50.0, *p.Speed)
	assert.Nil(t, p.Course)
	assert.False(t, p.Timestamp.IsZero())
}

func TestGenericOptionalFieldsDegrade(t *testing.T) {
	p, err := Decode("", []byte("dev-2,1.5,2.5,fast,north"))
	require.NoError(t, err)
	assert.Nil(t, p.Speed)
	assert.Nil(t, p.Course)

	p, err = Decode("", []byte("dev-2,1.5,2.5,,90"))
	require.NoError(t, err)
	assert.Nil(t, p.Speed)
	require.NotNil(t, p.Course)
	assert.Equal(t, 90.0, *p.Course)
}

func TestGenericRequiredFields(t *testing.T) {
	for _, line := range []string{"", "dev-1", "dev-1,40.0", "dev-1,north,3.0", ",1,2"} {
		p, err := Decode("", []byte(line))
		var de *DecodeError
		require.ErrorAs(t, err, &de, "line %q", line)
		assert.ErrorIs(t, err, ErrMalformed)
		assert.Equal(t, Position{}, p)
	}
}

func TestNonFiniteCoordinatesAreRejected(t *testing.T) {
	for _, c := range []struct{ tag, raw string }{
		{"", "dev,NaN,1"},
		{"", "dev,1,Inf"},
		{"", "dev-x,NaN,Inf"},
		{"", "dev,1,-Inf"},
		{"queclink", "+RESP:GTFRI,dev,,,,,,NaN,2.5"},
		{"teltonika", `{"id":"a","lat":"NaN","lon":1}`},
		{"teltonika", `{"id":"a","lat":1,"lon":"+Inf"}`},
		{"teltonika", `{"id":"a","lat":1,"lon":2,"speed":"Inf"}`},
		{"teltonika", `{"id":"a","lat":1e400,"lon":2}`},
	} {
		p, err := Decode(c.tag, []byte(c.raw))
		assert.ErrorIs(t, err, ErrMalformed, c.raw)
		assert.Equal(t, Position{}, p, c.raw)
	}
}

func TestNonFiniteOptionalFieldsDegrade(t *testing.T) {
	p, err := Decode("", []byte("dev,1,2,NaN,Inf"))
	require.NoError(t, err)
	assert.Nil(t, p.Speed)
	assert.Nil(t, p.Course)

	p, err = Decode("queclink", []byte("+RESP:GTFRI,dev,,,,,,1,2,,,Inf,NaN"))
	require.NoError(t, err)
	assert.Nil(t, p.Speed)
	assert.Nil(t, p.Course)
}

func TestUnknownProtocol(t *testing.T) {
	_, err := Decode("gt06", []byte("anything"))
	assert.ErrorIs(t, err, ErrUnknownProtocol)

	_, err = Encode("gt06", Position{DeviceID: "x"})
	assert.ErrorIs(t, err, ErrUnknownProtocol)
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	for _, tag := range []string{"Teltonika", "QUECLINK", " concox "} {
		_, err := Lookup(tag)
		assert.NoError(t, err, tag)
	}
	assert.Equal(t, []string{"concox", Generic, "queclink", "teltonika"}, Protocols())
}

func TestTeltonikaRoundTrip(t *testing.T) {
	in := Position{
		DeviceID:  "352093081234567",
		Latitude:  19.4326,
		Longitude: -99.1332,
		Speed:     Float(45.5),
		Course:    Float(180),
		Ignition:  Bool(true),
		Event:     String("tcp"),
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	raw, err := Encode("teltonika", in)
	require.NoError(t, err)

	out, err := Decode("teltonika", raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTeltonikaDefaults(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	fixedNow(t, now)

	p, err := Decode("teltonika", []byte(`{"id":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Latitude)
	assert.Equal(t, 0.0, p.Longitude)
	assert.Nil(t, p.Speed)
	assert.Nil(t, p.Course)
	assert.Nil(t, p.Event)
	assert.Nil(t, p.Ignition)
	assert.Equal(t, now, p.Timestamp)
}

func TestTeltonikaIOElements(t *testing.T) {
	p, err := Decode("teltonika", []byte(`{"id":123,"lat":"1.5","lon":2,"io":{"239":1,"24":62}}`))
	require.NoError(t, err)
	assert.Equal(t, "123", p.DeviceID)
	assert.Equal(t, 1.5, p.Latitude)
	require.NotNil(t, p.Ignition)
	assert.True(t, *p.Ignition)
	require.NotNil(t, p.Speed)
	assert.Equal(t, 62.0, *p.Speed)
}

func TestTeltonikaTimestampWithoutZone(t *testing.T) {
	p, err := Decode("teltonika", []byte(`{"id":"a","lat":1,"lon":2,"ts":"2024-05-01T10:00:00.250000"}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 250000000, time.UTC), p.Timestamp)
}

func TestTeltonikaMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`null`,
		`{"lat":1,"lon":2}`,
		`{"id":"a","lat":"north"}`,
		`{"id":"a","ts":"yesterday"}`,
		`{"id":"a","ign":"yes"}`,
	} {
		p, err := Decode("teltonika", []byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, raw)
		assert.Equal(t, Position{}, p, raw)
	}
}

func TestQueclinkRoundTrip(t *testing.T) {
	in := Position{
		DeviceID:  "860000000000001",
		Latitude:  -34.603722,
		Longitude: -58.381592,
		Speed:     Float(12.5),
		Course:    Float(270),
	}
	raw, err := Encode("queclink", in)
	require.NoError(t, err)
	assert.Equal(t, "+RESP:GTFRI,860000000000001,,,,,,-34.603722,-58.381592,,,12.5,270", string(raw))

	out, err := Decode("queclink", raw)
	require.NoError(t, err)
	assert.Equal(t, in.DeviceID, out.DeviceID)
	assert.Equal(t, in.Latitude, out.Latitude)
	assert.Equal(t, in.Longitude, out.Longitude)
	assert.Equal(t, in.Speed, out.Speed)
	assert.Equal(t, in.Course, out.Course)
	assert.Equal(t, String("queclink"), out.Event)
}

func TestQueclinkShortFrame(t *testing.T) {
	p, err := Decode("queclink", []byte("+RESP:GTFRI,dev,,,,,,1.25,2.5$"))
	require.NoError(t, err)
	assert.Equal(t, "dev", p.DeviceID)
	assert.Equal(t, 2.5, p.Longitude)
	assert.Nil(t, p.Speed)
	assert.Nil(t, p.Course)

	_, err = Decode("queclink", []byte("+RESP:GTFRI,dev,,,"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode("queclink", []byte("+RESP:GTFRI"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestConcoxRoundTrip(t *testing.T) {
	in := Position{DeviceID: "0a1b2c3d", Latitude: 19.432608, Longitude: -99.133209}
	raw, err := Encode("concox", in)
	require.NoError(t, err)

	out, err := Decode("concox", raw)
	require.NoError(t, err)
	assert.Equal(t, in.DeviceID, out.DeviceID)
	assert.InDelta(t, in.Latitude, out.Latitude, 1e-6)
	assert.InDelta(t, in.Longitude, out.Longitude, 1e-6)
	assert.Equal(t, String("concox"), out.Event)
}

func TestConcoxPadsShortDeviceID(t *testing.T) {
	raw, err := Encode("concox", Position{DeviceID: "ff", Latitude: 1, Longitude: 2})
	require.NoError(t, err)
	out, err := Decode("concox", raw)
	require.NoError(t, err)
	assert.Equal(t, "000000ff", out.DeviceID)

	_, err = Encode("concox", Position{DeviceID: "not-hex"})
	assert.Error(t, err)
	_, err = Encode("concox", Position{DeviceID: "0102030405"})
	assert.Error(t, err)
}

func TestConcoxTruncatedFrameIsSentinel(t *testing.T) {
	for n := 0; n < concoxMinLen; n++ {
		payload := base64.StdEncoding.EncodeToString(make([]byte, n))
		p, err := Decode("concox", []byte(payload))
		require.NoError(t, err, "len %d", n)
		assert.Equal(t, UnknownDevice, p.DeviceID)
		assert.Zero(t, p.Latitude)
		assert.Zero(t, p.Longitude)
		assert.False(t, p.Timestamp.IsZero())
	}

	p, err := Decode("concox", []byte("%%%"))
	require.NoError(t, err)
	assert.Equal(t, UnknownDevice, p.DeviceID)

	// Long enough for the id but not for both coordinates.
	p, err = Decode("concox", []byte(base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4, 0, 0, 0, 1, 0, 0})))
	require.NoError(t, err)
	assert.Equal(t, UnknownDevice, p.DeviceID)
}

func TestSplitFrame(t *testing.T) {
	tag, payload := SplitFrame("teltonika|{\"id\":\"a\"}")
	assert.Equal(t, "teltonika", tag)
	assert.Equal(t, `{"id":"a"}`, payload)

	tag, payload = SplitFrame("dev-1,1,2")
	assert.Empty(t, tag)
	assert.Equal(t, "dev-1,1,2", payload)
}

func TestDecodeErrorUnwraps(t *testing.T) {
	_, err := Decode("queclink", []byte("x"))
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "queclink", de.Protocol)
	assert.Contains(t, err.Error(), "decode queclink")
}

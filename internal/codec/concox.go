package codec

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

const (
	concoxMinLen = 12
	concoxScale  = 1_000_000
)

// concox decodes base64 wrapped binary frames:
//
//	[0:4] device id  [4:8] lat int32 BE * 1e6  [8:12] lon int32 BE * 1e6
type concox struct{}

func (concox) Name() string { return "concox" }

// Decode never fails: a payload too short for any field of the record decodes
// to the UnknownDevice sentinel.
func (concox) Decode(payload []byte) (Position, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(payload)))
	if err != nil {
		data = payload
	}
	id, err := safeRead(data, 0, 4)
	if err != nil {
		return Position{DeviceID: UnknownDevice}, nil
	}
	lat, err := safeRead(data, 4, 4)
	if err != nil {
		return Position{DeviceID: UnknownDevice}, nil
	}
	lon, err := safeRead(data, 8, 4)
	if err != nil {
		return Position{DeviceID: UnknownDevice}, nil
	}
	return Position{
		DeviceID:  hex.EncodeToString(id),
		Latitude:  float64(int32(binary.BigEndian.Uint32(lat))) / concoxScale,
		Longitude: float64(int32(binary.BigEndian.Uint32(lon))) / concoxScale,
		Event:     String("concox"),
	}, nil
}

func (concox) Encode(p Position) ([]byte, error) {
	idHex := p.DeviceID
	if len(idHex) > 8 {
		return nil, fmt.Errorf("concox: device id %q longer than 4 bytes", p.DeviceID)
	}
	idHex = strings.Repeat("0", 8-len(idHex)) + idHex
	id, err := hex.DecodeString(idHex)
	if err != nil {
		return nil, fmt.Errorf("concox: device id %q is not hex: %w", p.DeviceID, err)
	}

	buf := make([]byte, concoxMinLen)
	copy(buf[0:4], id)
	binary.BigEndian.PutUint32(buf[4:8], uint32(fixedPoint(p.Latitude)))
	binary.BigEndian.PutUint32(buf[8:12], uint32(fixedPoint(p.Longitude)))

	out := make([]byte, base64.StdEncoding.EncodedLen(len(buf)))
	base64.StdEncoding.Encode(out, buf)
	return out, nil
}

func fixedPoint(deg float64) int32 {
	return int32(math.Round(deg * concoxScale))
}

// safeRead avoids a panic when offset runs past the buffer.
func safeRead(data []byte, offset, length int) ([]byte, error) {
	if offset+length > len(data) {
		return nil, fmt.Errorf("buffer overflow: tried to read %d bytes at offset %d (len=%d)", length, offset, len(data))
	}
	return data[offset : offset+length], nil
}

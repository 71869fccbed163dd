package fmxxx

// Teltonika FMxxx AVL IO element ids carried in tag-value frames.
const (
	Ignition     = 239
	Movement     = 240
	GSMSignal    = 21
	VehicleSpeed = 24
	ExtVolt      = 66
	BatteryVolt  = 67
	BattLevel    = 113
	DIn1         = 1
	DOut1        = 179
)

package data

// Fix is the latest position/time report of the node, as published by the
// GPS daemon.
type Fix struct {
	SysTime uint64  `json:"systime"` // ms since the epoch, local clock
	GpsTime uint64  `json:"gpstime"` // ms since the epoch, GPS clock
	Mode    int     `json:"fix"`     // 0 unknown, 1 none, 2 2D, 3 3D
	Sats    int     `json:"nsats"`
	HDOP    float64 `json:"hdop"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Alt     float64 `json:"alt"`
	Speed   float64 `json:"speed"` // km/h
	Heading float64 `json:"head"`  // degrees
}

// Apply copies the mobility context of f into m.
func (f *Fix) Apply(m *Measurement) {
	m.Latitude = f.Lat
	m.Longitude = f.Lon
	m.Speed = f.Speed
	m.Orientation = f.Heading
	m.Moving = IsMoving(f.Speed)
}

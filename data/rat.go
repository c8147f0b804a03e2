package data

// RAT identifies a radio access technology.
type RAT int

// Known radio access technologies.
const (
	Loopback RAT = iota
	WiFiN
	WiFiAC
	WiFiAD
	NR5G
)

var ratNames = []string{"lo", "802.11n", "802.11ac", "802.11ad", "5g-nr"}

func (r RAT) String() string {
	if r < 0 || int(r) >= len(ratNames) {
		return "unknown"
	}
	return ratNames[r]
}

// ParseRAT returns the RAT with the given name.
func ParseRAT(name string) (RAT, bool) {
	for i, n := range ratNames {
		if n == name {
			return RAT(i), true
		}
	}
	return 0, false
}

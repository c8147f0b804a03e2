package channelmon

import "strings"

// EncodeScanInfo builds the opaque scan_info string from scan results, one
// comma separated line per network with the SSID first. Only networks in
// ssids are kept; lines are joined with ';'.
func EncodeScanInfo(lines []string, ssids []string) string {
	want := make(map[string]bool, len(ssids))
	for _, s := range ssids {
		want[s] = true
	}
	var kept []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		ssid, _, _ := strings.Cut(l, ",")
		if l == "" || !want[strings.TrimSpace(ssid)] {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, ";")
}

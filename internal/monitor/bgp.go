package monitor

import "strings"

// BGPStatus counts the sessions of one peer group.
type BGPStatus struct {
	Up    int
	Total int
}

// ParseBGPProtocols counts BGP sessions of peerGroup in the output of
// "birdc show protocols". A session is up when its line says Established.
func ParseBGPProtocols(out, peerGroup string) BGPStatus {
	var st BGPStatus
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "BGP") || !strings.Contains(line, peerGroup) {
			continue
		}
		st.Total++
		if strings.Contains(line, "Established") {
			st.Up++
		}
	}
	return st
}

package service

import (
	"net/netip"
	"strings"
)

// IPRiskThreshold is the highest risk score a session tolerates.
const IPRiskThreshold = 70

// IPRiskScore compares the session's IP with the request's. Each matching
// leading IPv4 octet lowers the score by 25, stopping at the first mismatch.
// Anything that is not a pair of IPv4 addresses scores 0 when identical and
// 100 otherwise.
func IPRiskScore(sessionIP, requestIP string) int {
	sessionIP = strings.TrimSpace(sessionIP)
	requestIP = strings.TrimSpace(requestIP)
	if sessionIP == requestIP {
		return 0
	}
	a, okA := parseIPv4(sessionIP)
	b, okB := parseIPv4(requestIP)
	if !okA || !okB {
		return 100
	}
	matched := 0
	for i := 0; i < 4; i++ {
		if a[i] != b[i] {
			break
		}
		matched++
	}
	return 100 - 25*matched
}

func parseIPv4(raw string) ([4]byte, bool) {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return [4]byte{}, false
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return [4]byte{}, false
	}
	return addr.As4(), true
}

package tracker

import "firestige.xyz/stallwatch/internal/sockdiag"

// SocketInfo is one sample of a TCP socket.
type SocketInfo struct {
	TCPInfo sockdiag.TCPInfo
	Fwmark  uint32
	// UpdateTime is the poll start in unix milliseconds.
	UpdateTime int64
	Family     uint8
	Cookie     uint64
}

// extractSocketInfo converts a decoded record carrying tcp_info.
func extractSocketInfo(rec sockdiag.DiagRecord, now int64) SocketInfo {
	info := SocketInfo{
		Fwmark:     rec.Mark,
		UpdateTime: now,
		Family:     rec.Family,
		Cookie:     rec.Cookie,
	}
	if rec.TCPInfo != nil {
		info.TCPInfo = *rec.TCPInfo
	}
	return info
}

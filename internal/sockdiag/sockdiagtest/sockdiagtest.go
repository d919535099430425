// Package sockdiagtest builds sock_diag response bytes for tests.
package sockdiagtest

import (
	"bytes"

	"github.com/mdlayher/netlink/nlenc"

	"firestige.xyz/stallwatch/internal/core"
	"firestige.xyz/stallwatch/internal/sockdiag"
)

// DefaultCookie and DefaultMark are what Record uses unless overridden.
const (
	DefaultCookie uint64 = 0x0000_2776_0000_ED34
	DefaultMark   uint32 = 0x000C0A85
)

// Socket describes one dumped TCP socket.
type Socket struct {
	Family      uint8
	Cookie      uint64
	Mark        uint32
	Retransmits uint8
	Lost        uint32
	SegsOut     uint32
	SegsIn      uint32
}

// Record returns a 276 byte SOCK_DIAG_BY_FAMILY unit for an IPv4 socket
// with DefaultCookie and DefaultMark, 5 retransmits and the given lost and
// sent (segs_out) counters.
func Record(lost, sent uint32) []byte {
	return Encode(Socket{
		Family:      core.FamilyIPv4,
		Cookie:      DefaultCookie,
		Mark:        DefaultMark,
		Retransmits: 5,
		Lost:        lost,
		SegsOut:     sent,
	})
}

// Encode serializes s the way the kernel does: inet_diag_msg, then a
// padding attribute of odd length, INET_DIAG_MARK and INET_DIAG_INFO.
func Encode(s Socket) []byte {
	msg := make([]byte, sockdiag.InetDiagMsgLen)
	msg[0] = s.Family
	msg[1] = 1                  // TCP_ESTABLISHED
	msg[4], msg[5] = 0xDE, 0xA5 // sport 42462, network order
	msg[6], msg[7] = 0x71, 0xB9 // dport 47473
	copy(msg[8:12], []byte{10, 0, 100, 2})
	copy(msg[24:28], []byte{8, 8, 8, 8})
	nlenc.PutUint64(msg[44:52], s.Cookie)

	var attrs []byte
	attrs = appendAttr(attrs, 8, []byte{0})
	mark := make([]byte, 4)
	nlenc.PutUint32(mark, s.Mark)
	attrs = appendAttr(attrs, sockdiag.AttrMark, mark)
	attrs = appendAttr(attrs, sockdiag.AttrInfo, tcpInfo(s))

	return sockdiag.AppendMessage(nil, sockdiag.Header{
		Type:  sockdiag.SockDiagByFamily,
		Flags: sockdiag.FlagRequest | sockdiag.FlagDump,
	}, append(msg, attrs...))
}

// Done returns an NLMSG_DONE unit.
func Done() []byte {
	return sockdiag.AppendMessage(nil, sockdiag.Header{
		Type:  sockdiag.NlmsgDone,
		Flags: sockdiag.FlagRequest | sockdiag.FlagDump,
	}, []byte{core.FamilyIPv4, 6, 0, 0})
}

// HeaderOnly returns a SOCK_DIAG_BY_FAMILY unit with no payload.
func HeaderOnly() []byte {
	return sockdiag.AppendMessage(nil, sockdiag.Header{
		Type:  sockdiag.SockDiagByFamily,
		Flags: sockdiag.FlagRequest | sockdiag.FlagDump,
	}, nil)
}

// Repeat concatenates n copies of unit.
func Repeat(unit []byte, n int) []byte {
	return bytes.Repeat(unit, n)
}

// Concat joins units into one chunk.
func Concat(units ...[]byte) []byte {
	return bytes.Join(units, nil)
}

// appendAttr appends an rtattr; the length excludes trailing padding.
func appendAttr(dst []byte, typ uint16, data []byte) []byte {
	hdr := make([]byte, 4)
	nlenc.PutUint16(hdr[0:2], uint16(4+len(data)))
	nlenc.PutUint16(hdr[2:4], typ)
	dst = append(dst, hdr...)
	dst = append(dst, data...)
	for len(dst)%4 != 0 {
		dst = append(dst, 0)
	}
	return dst
}

// tcpInfo returns a 168 byte struct tcp_info.
func tcpInfo(s Socket) []byte {
	b := make([]byte, 168)
	b[0] = 1 // state
	b[2] = s.Retransmits
	b[5] = 0x07                     // options
	b[6] = 0x88                     // wscale
	nlenc.PutUint32(b[16:20], 1326) // snd_mss
	nlenc.PutUint32(b[20:24], 536)  // rcv_mss
	nlenc.PutUint32(b[32:36], s.Lost)
	nlenc.PutUint32(b[68:72], 1500) // pmtu
	nlenc.PutUint32(b[136:140], s.SegsOut)
	nlenc.PutUint32(b[140:144], s.SegsIn)
	return b
}

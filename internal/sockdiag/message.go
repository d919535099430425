package sockdiag

import (
	"github.com/mdlayher/netlink/nlenc"
)

// Header is struct nlmsghdr.
type Header struct {
	Length   uint32
	Type     uint16
	Flags    uint16
	Sequence uint32
	PID      uint32
}

// parseHeader reads a header from the first HeaderLen bytes of b.
func parseHeader(b []byte) Header {
	return Header{
		Length:   nlenc.Uint32(b[0:4]),
		Type:     nlenc.Uint16(b[4:6]),
		Flags:    nlenc.Uint16(b[6:8]),
		Sequence: nlenc.Uint32(b[8:12]),
		PID:      nlenc.Uint32(b[12:16]),
	}
}

// AppendMessage appends one netlink unit (header followed by payload, padded
// to 4 bytes) to dst. A zero h.Length is filled in from the payload size.
func AppendMessage(dst []byte, h Header, payload []byte) []byte {
	if h.Length == 0 {
		h.Length = uint32(HeaderLen + len(payload))
	}

	var hdr [HeaderLen]byte
	nlenc.PutUint32(hdr[0:4], h.Length)
	nlenc.PutUint16(hdr[4:6], h.Type)
	nlenc.PutUint16(hdr[6:8], h.Flags)
	nlenc.PutUint32(hdr[8:12], h.Sequence)
	nlenc.PutUint32(hdr[12:16], h.PID)

	dst = append(dst, hdr[:]...)
	dst = append(dst, payload...)
	if pad := align(HeaderLen+len(payload)) - (HeaderLen + len(payload)); pad > 0 {
		dst = append(dst, make([]byte, pad)...)
	}
	return dst
}

// EncodeRequest builds a SOCK_DIAG_BY_FAMILY dump request for TCP sockets of
// the given address family, asking for INET_DIAG_INFO.
func EncodeRequest(family uint8) []byte {
	req := make([]byte, InetDiagReqLen)
	req[0] = family
	req[1] = ipprotoTCP
	req[2] = 1 << (AttrInfo - 1) // idiag_ext
	nlenc.PutUint32(req[4:8], monitoredStates)
	// inet_diag_sockid starts at 8; ports/addresses/ifindex stay zero for a dump.
	nlenc.PutUint32(req[48:52], noCookie)
	nlenc.PutUint32(req[52:56], noCookie)

	return AppendMessage(nil, Header{
		Type:  SockDiagByFamily,
		Flags: FlagRequest | FlagDump,
	}, req)
}

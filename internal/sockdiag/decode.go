package sockdiag

import (
	"fmt"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"

	"firestige.xyz/stallwatch/internal/core"
)

// TCPInfo holds the tcp_info counters used for stall detection.
type TCPInfo struct {
	Retransmits uint32
	Lost        uint32
	SegsOut     uint32
	SegsIn      uint32
}

// DiagRecord is one decoded inet_diag_msg.
type DiagRecord struct {
	Family uint8
	State  uint8
	Cookie uint64
	Mark   uint32
	// TCPInfo is nil when the reply carried no usable INET_DIAG_INFO.
	TCPInfo *TCPInfo
}

// DecodeNext decodes the first netlink unit of b.
//
// It returns the record and the number of bytes consumed, or one of
// core.ErrInsufficientData (fewer bytes than a header), core.ErrDumpDone
// (NLMSG_DONE; anything after it is left unread) or core.ErrMalformed.
func DecodeNext(b []byte) (DiagRecord, int, error) {
	if len(b) < HeaderLen {
		return DiagRecord{}, 0, core.ErrInsufficientData
	}

	h := parseHeader(b)
	if h.Type == NlmsgDone {
		return DiagRecord{}, 0, core.ErrDumpDone
	}

	length := int(h.Length)
	if length < HeaderLen || length > len(b) {
		return DiagRecord{}, 0, fmt.Errorf("%w: length %d with %d bytes available",
			core.ErrMalformed, h.Length, len(b))
	}
	if h.Type != SockDiagByFamily {
		return DiagRecord{}, 0, fmt.Errorf("%w: unexpected message type %d", core.ErrMalformed, h.Type)
	}

	consumed := align(length)
	if consumed > len(b) {
		consumed = len(b)
	}

	// Too short to hold an inet_diag_msg: nothing to report, skip it.
	if length < MsgHeaderLen {
		return DiagRecord{}, consumed, nil
	}

	rec, err := decodeInetDiagMsg(b[HeaderLen:length])
	if err != nil {
		return DiagRecord{}, 0, err
	}
	return rec, consumed, nil
}

// decodeInetDiagMsg decodes an inet_diag_msg followed by its rtattr chain.
func decodeInetDiagMsg(b []byte) (DiagRecord, error) {
	rec := DiagRecord{
		Family: b[offFamily],
		State:  b[offState],
		Cookie: nlenc.Uint64(b[offCookie : offCookie+8]),
	}

	attrs := b[InetDiagMsgLen:]
	if len(attrs) == 0 {
		return rec, nil
	}

	ad, err := netlink.NewAttributeDecoder(attrs)
	if err != nil {
		return DiagRecord{}, fmt.Errorf("%w: %v", core.ErrMalformed, err)
	}
	for ad.Next() {
		switch ad.Type() {
		case AttrMark:
			if v := ad.Bytes(); len(v) >= 4 {
				rec.Mark = nlenc.Uint32(v[:4])
			}
		case AttrInfo:
			rec.TCPInfo = parseTCPInfo(ad.Bytes())
		}
	}
	if err := ad.Err(); err != nil {
		return DiagRecord{}, fmt.Errorf("%w: %v", core.ErrMalformed, err)
	}

	return rec, nil
}

// parseTCPInfo reads the counters out of a struct tcp_info. Kernels older
// than 4.2 do not report segs_out/segs_in; nil is returned for them.
func parseTCPInfo(b []byte) *TCPInfo {
	if len(b) < minTCPInfoLen {
		return nil
	}
	return &TCPInfo{
		Retransmits: uint32(b[offRetransmits]),
		Lost:        nlenc.Uint32(b[offLost : offLost+4]),
		SegsOut:     nlenc.Uint32(b[offSegsOut : offSegsOut+4]),
		SegsIn:      nlenc.Uint32(b[offSegsIn : offSegsIn+4]),
	}
}

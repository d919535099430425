// Package sockdiag implements the NETLINK_INET_DIAG dump exchange: it encodes
// SOCK_DIAG_BY_FAMILY requests and decodes the kernel's response stream into
// per-socket records.
//
// All multi-byte fields are in host byte order, as the kernel writes them.
package sockdiag

// Netlink message types and flags used by the dump exchange.
const (
	NlmsgDone        uint16 = 0x3  // NLMSG_DONE
	SockDiagByFamily uint16 = 0x14 // SOCK_DIAG_BY_FAMILY

	FlagRequest uint16 = 0x1   // NLM_F_REQUEST
	FlagDump    uint16 = 0x300 // NLM_F_ROOT | NLM_F_MATCH
)

// rtattr types of interest in an inet_diag_msg reply.
const (
	AttrInfo uint16 = 2  // INET_DIAG_INFO, struct tcp_info
	AttrMark uint16 = 15 // INET_DIAG_MARK, u32 socket mark
)

// Fixed struct sizes, see include/uapi/linux/{netlink,inet_diag}.h.
const (
	HeaderLen      = 16 // struct nlmsghdr
	InetDiagMsgLen = 72 // struct inet_diag_msg
	InetDiagReqLen = 56 // struct inet_diag_req_v2

	// MsgHeaderLen is nlmsghdr + inet_diag_msg; attributes start here.
	MsgHeaderLen = HeaderLen + InetDiagMsgLen
)

// Offsets inside struct inet_diag_msg.
const (
	offFamily = 0
	offState  = 1
	offCookie = 44 // idiag_family..idiag_if precede the two-u32 cookie
)

// Offsets inside struct tcp_info.
const (
	offRetransmits = 2   // __u8 tcpi_retransmits
	offLost        = 32  // __u32 tcpi_lost
	offSegsOut     = 136 // __u32 tcpi_segs_out
	offSegsIn      = 140 // __u32 tcpi_segs_in

	// minTCPInfoLen covers every field read above (kernel >= 4.2).
	minTCPInfoLen = offSegsIn + 4
)

const ipprotoTCP = 6

// TCP states (include/net/tcp_states.h).
const (
	tcpEstablished = 1
	tcpSynSent     = 2
	tcpSynRecv     = 3
	tcpFinWait1    = 4
	tcpFinWait2    = 5
	tcpClosing     = 11
	tcpLastAck     = 9
)

// monitoredStates selects sockets that can still move data; closed,
// listening and TIME_WAIT sockets carry no useful loss signal.
const monitoredStates uint32 = 1<<tcpEstablished | 1<<tcpSynSent | 1<<tcpSynRecv |
	1<<tcpFinWait1 | 1<<tcpFinWait2 | 1<<tcpClosing | 1<<tcpLastAck

// noCookie is INET_DIAG_NOCOOKIE.
const noCookie uint32 = ^uint32(0)

// align rounds n up to the 4-byte netlink alignment (NLMSG_ALIGN).
func align(n int) int {
	return (n + 3) &^ 3
}

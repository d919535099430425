package sockdiag

import (
	"testing"

	"github.com/mdlayher/netlink/nlenc"
)

func TestEncodeRequest(t *testing.T) {
	for _, family := range []uint8{2, 10} {
		b := EncodeRequest(family)
		if len(b) != HeaderLen+InetDiagReqLen {
			t.Fatalf("Expected %d bytes, got %d", HeaderLen+InetDiagReqLen, len(b))
		}

		h := parseHeader(b)
		if h.Length != 72 {
			t.Errorf("Expected length 72, got %d", h.Length)
		}
		if h.Type != SockDiagByFamily {
			t.Errorf("Expected type %d, got %d", SockDiagByFamily, h.Type)
		}
		if h.Flags != 0x301 {
			t.Errorf("Expected flags 0x301, got %#x", h.Flags)
		}

		req := b[HeaderLen:]
		if req[0] != family {
			t.Errorf("Expected family %d, got %d", family, req[0])
		}
		if req[1] != ipprotoTCP {
			t.Errorf("Expected protocol %d, got %d", ipprotoTCP, req[1])
		}
		if req[2] != 0x02 {
			t.Errorf("Expected ext 0x02, got %#x", req[2])
		}
		if got := nlenc.Uint32(req[4:8]); got != monitoredStates {
			t.Errorf("Expected states %#x, got %#x", monitoredStates, got)
		}
		if got := nlenc.Uint32(req[48:52]); got != noCookie {
			t.Errorf("Expected INET_DIAG_NOCOOKIE, got %#x", got)
		}
	}
}

func TestMonitoredStates(t *testing.T) {
	if monitoredStates&(1<<7) != 0 {
		t.Error("TCP_CLOSE must not be requested")
	}
	if monitoredStates&(1<<10) != 0 {
		t.Error("TCP_LISTEN must not be requested")
	}
	if monitoredStates&(1<<tcpEstablished) == 0 {
		t.Error("TCP_ESTABLISHED must be requested")
	}
}

func TestAppendMessagePadding(t *testing.T) {
	b := AppendMessage(nil, Header{Type: SockDiagByFamily}, []byte{1, 2, 3, 4, 5})
	if len(b) != 24 {
		t.Fatalf("Expected padded length 24, got %d", len(b))
	}
	if h := parseHeader(b); h.Length != 21 {
		t.Errorf("Expected header length 21, got %d", h.Length)
	}

	b = AppendMessage(b, Header{Type: NlmsgDone, Length: 20}, []byte{0, 0, 0, 0})
	if len(b) != 44 {
		t.Errorf("Expected 44 bytes after second message, got %d", len(b))
	}
}

func TestParseTCPInfo(t *testing.T) {
	if parseTCPInfo(make([]byte, minTCPInfoLen-1)) != nil {
		t.Error("Expected nil for a short tcp_info")
	}

	b := make([]byte, 232)
	b[offRetransmits] = 3
	nlenc.PutUint32(b[offLost:offLost+4], 4)
	nlenc.PutUint32(b[offSegsOut:offSegsOut+4], 50)
	nlenc.PutUint32(b[offSegsIn:offSegsIn+4], 40)

	info := parseTCPInfo(b)
	if info == nil {
		t.Fatal("Expected tcp_info")
	}
	want := TCPInfo{Retransmits: 3, Lost: 4, SegsOut: 50, SegsIn: 40}
	if *info != want {
		t.Errorf("Expected %+v, got %+v", want, *info)
	}
}

func TestReleaseAtLeast(t *testing.T) {
	tests := []struct {
		release string
		want    bool
	}{
		{"4.14.0", true},
		{"4.13.16-generic", false},
		{"4.19.112+", true},
		{"5.4", true},
		{"6.1.0-rc3", true},
		{"3.18.140", false},
		{"4.14-android", true},
		{"", false},
		{"linux", false},
	}

	for _, tt := range tests {
		if got := releaseAtLeast(tt.release, minKernelMajor, minKernelMinor); got != tt.want {
			t.Errorf("releaseAtLeast(%q) = %v, want %v", tt.release, got, tt.want)
		}
	}
}

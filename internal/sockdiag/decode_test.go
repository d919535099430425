package sockdiag_test

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/stallwatch/internal/core"
	"firestige.xyz/stallwatch/internal/sockdiag"
	"firestige.xyz/stallwatch/internal/sockdiag/sockdiagtest"
)

// A kernel reply captured on a little-endian host: one IPv4 socket
// 10.0.100.2:42462 -> 8.8.8.8:47473, mark 0xC0A85, 5 retransmits, 10 segs out.
var capturedRecordHex = strings.Join([]string{
	// nlmsghdr
	"14010000", "1400", "0301", "00000000", "00000000",
	// inet_diag_msg
	"02", "06", "00", "00",
	"DEA5", "71B9",
	"0a006402000000000000000000000000",
	"08080808000000000000000000000000",
	"00000000",
	"34ED000076270000",
	"00000000", "00000000", "00000000", "00000000", "00000000",
	// rtattr type 8, len 5
	"0500", "0800", "00000000",
	// INET_DIAG_MARK
	"0800", "0F00", "850A0C00",
	// INET_DIAG_INFO, len 172
	"AC00", "0200",
	"01", "00", "05", "00", "00", "07", "88", "00",
	"4A911B00", "00000000", "2E050000", "18020000", "00000000", "00000000",
	"00000000", // lost
	"00000000", "00000000", "BB000000", "00000000", "BB000000", "BB000000",
	"DC050000", "30560100", "3E2C0900", "1F960400", "78050000", "0A000000",
	"A8050000", "03000000", "00000000", "30560100", "00000000",
	"53AC000000000000", "FFFFFFFFFFFFFFFF", "0100000000000000", "0000000000000000",
	"0A000000", // segs_out
	"00000000", // segs_in
	"00000000", "3E2C0900", "00000000", "00000000", "0000000000000000",
}, "")

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestDecodeCapturedRecord(t *testing.T) {
	b := mustHex(t, capturedRecordHex)
	require.Len(t, b, 276)

	rec, n, err := sockdiag.DecodeNext(b)
	require.NoError(t, err)
	assert.Equal(t, 276, n)
	assert.Equal(t, core.FamilyIPv4, rec.Family)
	assert.Equal(t, uint8(6), rec.State)
	assert.Equal(t, sockdiagtest.DefaultCookie, rec.Cookie)
	assert.Equal(t, uint32(789125), rec.Mark)
	require.NotNil(t, rec.TCPInfo)
	assert.Equal(t, sockdiag.TCPInfo{Retransmits: 5, Lost: 0, SegsOut: 10, SegsIn: 0}, *rec.TCPInfo)
}

func TestDecodeBuiltRecord(t *testing.T) {
	b := sockdiagtest.Encode(sockdiagtest.Socket{
		Family:      core.FamilyIPv6,
		Cookie:      42,
		Mark:        0x1A85,
		Retransmits: 2,
		Lost:        3,
		SegsOut:     100,
		SegsIn:      7,
	})
	require.Len(t, b, 276)

	rec, n, err := sockdiag.DecodeNext(b)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)
	assert.Equal(t, core.FamilyIPv6, rec.Family)
	assert.Equal(t, uint64(42), rec.Cookie)
	assert.Equal(t, uint32(0x1A85), rec.Mark)
	assert.Equal(t, &sockdiag.TCPInfo{Retransmits: 2, Lost: 3, SegsOut: 100, SegsIn: 7}, rec.TCPInfo)
}

func TestDecodeSequence(t *testing.T) {
	chunk := sockdiagtest.Concat(
		sockdiagtest.Repeat(sockdiagtest.Record(0, 10), 3),
		sockdiagtest.Done(),
		sockdiagtest.Record(9, 20),
	)

	var records int
	for len(chunk) > 0 {
		_, n, err := sockdiag.DecodeNext(chunk)
		if errors.Is(err, core.ErrDumpDone) {
			break
		}
		require.NoError(t, err)
		records++
		chunk = chunk[n:]
	}
	assert.Equal(t, 3, records)
	// The record after DONE is never touched.
	assert.Len(t, chunk, 20+276)
}

func TestDecodeNextErrors(t *testing.T) {
	bad := sockdiagtest.Record(0, 10)
	// length = 0x58000000
	bad[0], bad[1], bad[2], bad[3] = 0x00, 0x00, 0x00, 0x58

	otherType := sockdiagtest.Record(0, 10)
	otherType[4], otherType[5] = 0x10, 0x00 // RTM_NEWLINK on little endian

	shortLen := sockdiagtest.HeaderOnly()
	shortLen[0], shortLen[1], shortLen[2], shortLen[3] = 8, 0, 0, 0

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, core.ErrInsufficientData},
		{"one byte", []byte{0}, core.ErrInsufficientData},
		{"fifteen bytes", make([]byte, 15), core.ErrInsufficientData},
		{"done", sockdiagtest.Done(), core.ErrDumpDone},
		{"done before data", sockdiagtest.Concat(sockdiagtest.Done(), sockdiagtest.Record(0, 10)), core.ErrDumpDone},
		{"length beyond buffer", bad, core.ErrMalformed},
		{"length below header", shortLen, core.ErrMalformed},
		{"unexpected type", otherType, core.ErrMalformed},
		{"truncated record", sockdiagtest.Record(0, 10)[:200], core.ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, n, err := sockdiag.DecodeNext(tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, n)
		})
	}
}

func TestDecodeHeaderOnly(t *testing.T) {
	rec, n, err := sockdiag.DecodeNext(sockdiagtest.HeaderOnly())
	require.NoError(t, err)
	assert.Equal(t, sockdiag.HeaderLen, n)
	assert.Nil(t, rec.TCPInfo)
	assert.Zero(t, rec.Mark)
}

func TestDecodeWithoutInfo(t *testing.T) {
	msg := make([]byte, sockdiag.InetDiagMsgLen)
	msg[0] = core.FamilyIPv4
	b := sockdiag.AppendMessage(nil, sockdiag.Header{Type: sockdiag.SockDiagByFamily}, msg)

	rec, n, err := sockdiag.DecodeNext(b)
	require.NoError(t, err)
	assert.Equal(t, sockdiag.MsgHeaderLen, n)
	assert.Equal(t, core.FamilyIPv4, rec.Family)
	assert.Nil(t, rec.TCPInfo)
}

func TestDecodeShortTCPInfo(t *testing.T) {
	b := mustHex(t, capturedRecordHex)
	// Shrink INET_DIAG_INFO to 100 bytes of payload, as an old kernel would send.
	const infoAttr = sockdiag.MsgHeaderLen + 16
	b = b[:infoAttr+4+100]
	b[infoAttr], b[infoAttr+1] = 104, 0
	b[0], b[1] = byte(len(b)), byte(len(b)>>8)

	rec, _, err := sockdiag.DecodeNext(b)
	require.NoError(t, err)
	assert.Equal(t, uint32(789125), rec.Mark)
	assert.Nil(t, rec.TCPInfo)
}

func TestDecodeBrokenAttribute(t *testing.T) {
	b := sockdiagtest.Record(0, 10)
	// First attribute claims 2 bytes, shorter than an rtattr header.
	b[sockdiag.MsgHeaderLen] = 2

	_, _, err := sockdiag.DecodeNext(b)
	assert.ErrorIs(t, err, core.ErrMalformed)
}

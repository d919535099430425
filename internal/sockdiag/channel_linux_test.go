//go:build linux

package sockdiag_test

import (
	"errors"
	"io"
	"testing"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/stallwatch/internal/core"
	"firestige.xyz/stallwatch/internal/sockdiag"
	"firestige.xyz/stallwatch/internal/sockdiag/sockdiagtest"
)

func diagMessage(unit []byte) netlink.Message {
	return netlink.Message{
		Header: netlink.Header{Type: netlink.HeaderType(sockdiag.SockDiagByFamily)},
		Data:   unit[sockdiag.HeaderLen:],
	}
}

// decodeAll decodes chunk until the end of the dump.
func decodeAll(t *testing.T, chunk []byte) []sockdiag.DiagRecord {
	t.Helper()
	var recs []sockdiag.DiagRecord
	for {
		rec, n, err := sockdiag.DecodeNext(chunk)
		if errors.Is(err, core.ErrDumpDone) {
			return recs
		}
		require.NoError(t, err, "chunk must end with NLMSG_DONE")
		recs = append(recs, rec)
		chunk = chunk[n:]
	}
}

func TestNetlinkChannel_MultipartDumpEndsWithDone(t *testing.T) {
	dump := func(req []netlink.Message) ([]netlink.Message, error) {
		return nltest.Multipart([]netlink.Message{
			diagMessage(sockdiagtest.Record(2, 10)),
			diagMessage(sockdiagtest.Record(0, 20)),
			{Data: []byte{core.FamilyIPv4, 6, 0, 0}},
		})
	}
	conn := nltest.Dial(nltest.CheckRequest(
		[]netlink.HeaderType{netlink.HeaderType(sockdiag.SockDiagByFamily)},
		[]netlink.HeaderFlags{netlink.HeaderFlags(sockdiag.FlagRequest | sockdiag.FlagDump)},
		dump,
	))
	ch := sockdiag.NewConnChannel(conn, 0)
	defer ch.Close()

	require.NoError(t, ch.Send(sockdiag.EncodeRequest(core.FamilyIPv4)))
	chunk, err := ch.Recv()
	require.NoError(t, err)

	recs := decodeAll(t, chunk)
	require.Len(t, recs, 2)
	require.NotNil(t, recs[0].TCPInfo)
	assert.Equal(t, uint32(10), recs[0].TCPInfo.SegsOut)
	assert.Equal(t, uint32(20), recs[1].TCPInfo.SegsOut)
}

func TestNetlinkChannel_EmptyDump(t *testing.T) {
	conn := nltest.Dial(func(req []netlink.Message) ([]netlink.Message, error) {
		return nil, io.EOF
	})
	ch := sockdiag.NewConnChannel(conn, 0)
	defer ch.Close()

	require.NoError(t, ch.Send(sockdiag.EncodeRequest(core.FamilyIPv6)))
	chunk, err := ch.Recv()
	require.NoError(t, err)
	assert.Empty(t, decodeAll(t, chunk))
}

func TestNetlinkChannel_ReceiveError(t *testing.T) {
	conn := nltest.Dial(func(req []netlink.Message) ([]netlink.Message, error) {
		return nil, errors.New("boom")
	})
	ch := sockdiag.NewConnChannel(conn, 0)
	defer ch.Close()

	require.NoError(t, ch.Send(sockdiag.EncodeRequest(core.FamilyIPv4)))
	_, err := ch.Recv()
	assert.ErrorContains(t, err, "boom")
}

package oscdispatch

import (
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trusch/vibelang/internal/apierr"
)

// listenerPort opens a throwaway UDP socket purely to get a free local
// port number to send test traffic at; the packets themselves are not
// inspected here, only that sending them does not error.
func listenerPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, portStr, err := net.SplitHostPort(conn.LocalAddr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func TestBackendCreateGroupAllocatesAndBindsID(t *testing.T) {
	b := NewBackend("127.0.0.1", listenerPort(t))
	require.NoError(t, b.CreateGroup("/synths", ""))

	id, ok := b.groupIDs.lookup("/synths")
	require.True(t, ok)
	require.Equal(t, int64(2), id)
}

func TestBackendCreateGroupUnknownParentFails(t *testing.T) {
	b := NewBackend("127.0.0.1", listenerPort(t))
	err := b.CreateGroup("/synths/lead", "/synths")
	require.Error(t, err)
}

func TestBackendFreeGroupReleasesID(t *testing.T) {
	b := NewBackend("127.0.0.1", listenerPort(t))
	require.NoError(t, b.CreateGroup("/synths", ""))
	require.NoError(t, b.FreeGroup("/synths"))

	_, ok := b.groupIDs.lookup("/synths")
	require.False(t, ok)
}

func TestBackendLoadSampleAllocatesBufferID(t *testing.T) {
	b := NewBackend("127.0.0.1", listenerPort(t))
	id, err := b.LoadSample("kick-sample", "/tmp/kick.wav")
	require.NoError(t, err)
	require.Equal(t, int64(0), id)

	bound, ok := b.bufferIDs.lookup("kick-sample")
	require.True(t, ok)
	require.Equal(t, id, bound)
}

func TestBackendTriggerNoteOnRequiresVoiceBinding(t *testing.T) {
	b := NewBackend("127.0.0.1", listenerPort(t))
	_, err := b.TriggerNoteOn("unknown-voice", 60, 1.0)
	require.Error(t, err)
}

func TestBackendTriggerNoteOnAndOff(t *testing.T) {
	b := NewBackend("127.0.0.1", listenerPort(t))
	require.NoError(t, b.CreateGroup("/synths", ""))
	require.NoError(t, b.CreateVoice("lead", "/synths", 4))

	nodeID, err := b.TriggerNoteOn("lead", 60, 0.8)
	require.NoError(t, err)
	require.NoError(t, b.TriggerNoteOff("lead", 60, nodeID))
}

func TestBackendLoadSampleWaitsForDoneWhenReplyListenerAttached(t *testing.T) {
	b := NewBackend("127.0.0.1", listenerPort(t))
	replyPort := listenerPort(t)
	rl := NewReplyListener(fmt.Sprintf("127.0.0.1:%d", replyPort))
	b.AttachReplyListener(rl)

	type outcome struct {
		bufID int64
		err   error
	}
	result := make(chan outcome, 1)
	go func() {
		bufID, err := b.LoadSample("kick", "/tmp/kick.wav")
		result <- outcome{bufID, err}
	}()

	client := osc.NewClient("127.0.0.1", replyPort)
	for i := 0; i < 100; i++ {
		msg := osc.NewMessage("/done")
		msg.Append("/b_allocRead")
		_ = client.Send(msg)
		select {
		case out := <-result:
			require.NoError(t, out.err)
			assert.Equal(t, int64(0), out.bufID)
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatal("LoadSample never unblocked on a matching /done message")
}

func TestBackendLoadSampleSurfacesTimeoutAndReleasesBufferID(t *testing.T) {
	b := NewBackend("127.0.0.1", listenerPort(t))
	rl := NewReplyListener(fmt.Sprintf("127.0.0.1:%d", listenerPort(t)))
	b.AttachReplyListener(rl)

	old := doneTimeout
	doneTimeout = 30 * time.Millisecond
	t.Cleanup(func() { doneTimeout = old })

	_, err := b.LoadSample("kick", "/tmp/kick.wav") // nothing ever replies
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindBackendError, apiErr.Kind)

	_, bound := b.bufferIDs.lookup("kick")
	assert.False(t, bound, "a timed-out load must release the buffer id it provisionally allocated")
}

func TestBackendRegisterSynthDefSurfacesTimeoutAndUnregisters(t *testing.T) {
	b := NewBackend("127.0.0.1", listenerPort(t))
	rl := NewReplyListener(fmt.Sprintf("127.0.0.1:%d", listenerPort(t)))
	b.AttachReplyListener(rl)

	old := doneTimeout
	doneTimeout = 30 * time.Millisecond
	t.Cleanup(func() { doneTimeout = old })

	err := b.RegisterSynthDef("pluck", "synthdef-bytes")
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindBackendError, apiErr.Kind)
	assert.False(t, b.synthDefs["pluck"])
}

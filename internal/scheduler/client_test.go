package scheduler

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/agentq/pkg/model"
)

// fakeScheduler accepts one connection, records the command line and replies
// with the given lines.
func fakeScheduler(t *testing.T, reply ...string) (addr string, got <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	cmds := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		cmds <- strings.TrimSpace(line)
		for _, r := range reply {
			io.WriteString(conn, r+"\n")
		}
	}()
	return ln.Addr().String(), cmds
}

func testClient(addr string) *Client {
	return NewClient(addr, 2*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNotifyQueueChangedAcknowledged(t *testing.T) {
	addr, got := fakeScheduler(t, "received", "end")

	err := testClient(addr).NotifyQueueChanged(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "database", <-got)
}

func TestNotifyQueueChangedEOFAfterAck(t *testing.T) {
	addr, _ := fakeScheduler(t, "received")
	require.NoError(t, testClient(addr).NotifyQueueChanged(context.Background()))
}

func TestNotifyQueueChangedRejected(t *testing.T) {
	addr, _ := fakeScheduler(t, "received", "Invalid command: database", "end")

	err := testClient(addr).NotifyQueueChanged(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransport)
	var terr *model.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Output, "Invalid command")
}

func TestNotifyQueueChangedNotAcknowledged(t *testing.T) {
	addr, _ := fakeScheduler(t, "busy", "end")

	err := testClient(addr).NotifyQueueChanged(context.Background())
	assert.ErrorIs(t, err, model.ErrTransport)
	assert.Contains(t, err.Error(), "busy")
}

func TestNotifyQueueChangedUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = testClient(addr).NotifyQueueChanged(context.Background())
	assert.ErrorIs(t, err, model.ErrTransport)
}

func TestSendCollectsOutput(t *testing.T) {
	addr, _ := fakeScheduler(t, "received", "", "queue reloaded", "end", "ignored after end")

	reply, err := testClient(addr).Send(context.Background(), CommandDatabase)
	require.NoError(t, err)
	assert.True(t, reply.OK())
	assert.Equal(t, []string{"queue reloaded"}, reply.Output)
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	assert.NoError(t, n.NotifyQueueChanged(context.Background()))
}

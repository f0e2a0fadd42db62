package scheduler

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/me/agentq/pkg/model"
)

// Scheduler commands and replies.
const (
	CommandDatabase = "database"

	replyReceived = "received"
	replyEnd      = "end"
	replyInvalid  = "Invalid"
)

// Client sends commands to the scheduler's TCP command socket. Each command
// uses a fresh connection.
type Client struct {
	addr    string
	timeout time.Duration
	logger  *slog.Logger
}

var _ Notifier = (*Client)(nil)

// NewClient creates a client for the scheduler listening on addr.
func NewClient(addr string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		addr:    addr,
		timeout: timeout,
		logger:  logger.With("component", "scheduler"),
	}
}

// Reply is the scheduler's answer to one command.
type Reply struct {
	Acknowledged bool
	Rejected     bool
	Output       []string
}

// OK reports whether the command was acknowledged and not rejected.
func (r *Reply) OK() bool { return r.Acknowledged && !r.Rejected }

// Send writes command and reads reply lines until "end" or EOF.
func (c *Client) Send(ctx context.Context, command string) (*Reply, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, &model.TransportError{Addr: c.addr, Err: fmt.Errorf("connect: %w", err)}
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	c.logger.Debug("send", "addr", c.addr, "command", command)
	if _, err := fmt.Fprintf(conn, "%s\n", command); err != nil {
		return nil, &model.TransportError{Addr: c.addr, Err: fmt.Errorf("send %s: %w", command, err)}
	}

	reply := &Reply{}
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == replyEnd:
			return reply, nil
		case line == replyReceived:
			reply.Acknowledged = true
		case strings.HasPrefix(line, replyInvalid):
			reply.Rejected = true
			reply.Output = append(reply.Output, line)
		case line != "":
			reply.Output = append(reply.Output, line)
		}
	}
	if err := sc.Err(); err != nil {
		return reply, &model.TransportError{Addr: c.addr, Output: strings.Join(reply.Output, "\n"), Err: fmt.Errorf("read reply: %w", err)}
	}
	return reply, nil
}

// NotifyQueueChanged sends the "database" command, which makes the scheduler
// reload the job queue.
func (c *Client) NotifyQueueChanged(ctx context.Context) error {
	reply, err := c.Send(ctx, CommandDatabase)
	if err != nil {
		return err
	}
	if !reply.OK() {
		output := strings.Join(reply.Output, "\n")
		c.logger.Warn("scheduler refused command", "addr", c.addr, "command", CommandDatabase, "output", output)
		reason := "command not acknowledged"
		if reply.Rejected {
			reason = "command rejected"
		}
		return &model.TransportError{Addr: c.addr, Output: output, Err: fmt.Errorf("%s: %s", CommandDatabase, reason)}
	}
	return nil
}

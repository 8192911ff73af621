package enip

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Identify sends a unicast ListIdentity request over UDP and waits for the matching reply.
// The context deadline bounds the whole exchange.
func Identify(ctx context.Context, host string, port int) (Identity, time.Duration, error) {
	if port <= 0 {
		port = DefaultPort
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return Identity{}, 0, fmt.Errorf("dial %s: %w", host, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return Identity{}, 0, fmt.Errorf("set deadline: %w", err)
		}
	}

	// Unblock the read on cancellation without a deadline.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	var senderContext [8]byte
	id := uuid.New()
	copy(senderContext[:], id[:8])

	start := time.Now()
	if _, err := conn.Write(BuildListIdentity(senderContext)); err != nil {
		return Identity{}, 0, fmt.Errorf("send ListIdentity: %w", err)
	}

	buf := make([]byte, 1500)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Identity{}, 0, ctxErr
			}
			return Identity{}, 0, fmt.Errorf("read ListIdentity reply: %w", err)
		}
		rtt := time.Since(start)

		h, _, err := DecodeHeader(buf[:n])
		if err != nil || !bytes.Equal(h.SenderContext[:], senderContext[:]) {
			// stale or foreign datagram
			continue
		}

		identity, err := ParseListIdentity(buf[:n])
		if err != nil {
			return Identity{}, rtt, fmt.Errorf("parse ListIdentity reply: %w", err)
		}
		return identity, rtt, nil
	}
}

package quic

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/recsync/internal/core/ecs"
	"github.com/zeusync/recsync/internal/core/network"
)

// startRelay serves events on every stream a client opens, answering each
// subscribe request with the events at its offset cursor.
func startRelay(t *testing.T, events []network.NetworkEvent) string {
	t.Helper()
	tlsConfig, err := GenerateSelfSignedTLS()
	require.NoError(t, err)
	ln, err := quic.ListenAddr("127.0.0.1:0", tlsConfig, DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = ln.Close()
	})

	go func() {
		for {
			conn, err := ln.Accept(ctx)
			if err != nil {
				return
			}
			go func() {
				stream, err := conn.AcceptStream(ctx)
				if err != nil {
					return
				}
				r := bufio.NewReader(stream)
				for {
					line, err := ReadLine(r)
					if err != nil {
						return
					}
					req, err := network.DecodeSubscribe(line)
					if err != nil {
						return
					}
					from := offset(req.Cursor, len(events))
					frame, _ := network.EncodeFrame(network.Frame{Subscription: req.ID, Events: events[from:]})
					if err := WriteLine(stream, frame); err != nil {
						return
					}
				}
			}()
		}
	}()
	return ln.Addr().String()
}

// offset parses cursor as an index into n events. The empty cursor is 0.
func offset(cursor string, n int) int {
	from, err := strconv.Atoi(cursor)
	if err != nil || from < 0 {
		return 0
	}
	if from > n {
		return n
	}
	return from
}

func makeEvents() []network.NetworkEvent {
	return []network.NetworkEvent{
		{Component: "Score", Entity: "p1", Value: ecs.Value{"value": 10.0}},
		{Component: "Score", Entity: "p2", Value: ecs.Value{"value": 20.0}},
		{Component: "Score", Entity: "p1", Value: nil},
	}
}

func TestDial_ReadsFromCursor(t *testing.T) {
	events := makeEvents()
	addr := startRelay(t, events)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	src, err := Dial(ctx, addr, ClientTLS("localhost", true), nil)
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, src.Seek(ctx, "1"))
	var got []network.NetworkEvent
	require.Eventually(t, func() bool {
		batch, err := src.Next(ctx, 10)
		if err != nil {
			return false
		}
		got = append(got, batch...)
		return len(got) == 2
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, events[1:], got)
}

func TestFactory_FeedsWorld(t *testing.T) {
	addr := startRelay(t, makeEvents())

	w := ecs.NewWorld()
	score, err := ecs.DefineNumberComponent(w, ecs.WithID("Score"))
	require.NoError(t, err)

	ch := network.NewSyncChannel(Factory(addr, ClientTLS("localhost", true), nil), network.WithAckPeriod(time.Millisecond))
	defer ch.Dispose()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = network.Consume(ctx, ch, w, nil) }()

	require.Eventually(t, func() bool {
		p2, ok := w.EntityIndex("p2")
		return ok && score.Has(p2)
	}, 3*time.Second, 5*time.Millisecond)

	p1, ok := w.EntityIndex("p1")
	require.True(t, ok)
	assert.Eventually(t, func() bool { return !score.Has(p1) }, time.Second, 5*time.Millisecond)
}

func TestDial_RejectsUnverifiedCertificate(t *testing.T) {
	addr := startRelay(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := Dial(ctx, addr, ClientTLS("localhost", false), nil)
	assert.Error(t, err)
}

func TestLineFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLine(&buf, []byte(`{"a":1}`)))
	require.NoError(t, WriteLine(&buf, []byte(strings.Repeat("x", 5000))))

	r := bufio.NewReaderSize(&buf, 16)
	first, err := ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(first))
	second, err := ReadLine(r)
	require.NoError(t, err)
	assert.Len(t, second, 5000)
}

package main

import (
	"encoding/json"
	"fmt"

	// math/rand is fine here: load payloads need no cryptographic randomness
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/tendermint/tendermint/libs/log"
	jsonrpc "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

const (
	sendTimeout = 10 * time.Second
	// the rpc server closes idle websocket connections without pings
	pingPeriod = (30 * 9 / 10) * time.Second
)

// transacter pushes transactions over N parallel websocket connections at a
// fixed per-connection rate.
type transacter struct {
	Target      string
	Rate        int
	Connections int

	conns       []*websocket.Conn
	connsBroken []bool
	startingWg  sync.WaitGroup
	endingWg    sync.WaitGroup
	stopped     bool

	sentPerSec metrics.Histogram

	logger log.Logger
}

func newTransacter(target string, connections, rate int) *transacter {
	return &transacter{
		Target:      target,
		Rate:        rate,
		Connections: connections,
		conns:       make([]*websocket.Conn, connections),
		connsBroken: make([]bool, connections),
		sentPerSec:  metrics.NewHistogram(metrics.NewUniformSample(1000)),
		logger:      log.NewNopLogger(),
	}
}

func (t *transacter) SetLogger(l log.Logger) {
	t.logger = l
}

// Start opens the connections and spawns a send and a receive goroutine per
// connection. It returns once every send loop has started ticking.
func (t *transacter) Start() error {
	t.stopped = false

	rand.Seed(time.Now().Unix())

	for i := 0; i < t.Connections; i++ {
		c, _, err := connect(t.Target)
		if err != nil {
			return err
		}
		t.conns[i] = c
	}

	t.startingWg.Add(t.Connections)
	t.endingWg.Add(2 * t.Connections)
	for i := 0; i < t.Connections; i++ {
		go t.sendLoop(i)
		go t.receiveLoop(i)
	}

	t.startingWg.Wait()
	return nil
}

// Stop closes the connections.
func (t *transacter) Stop() {
	t.stopped = true
	t.endingWg.Wait()
	for _, c := range t.conns {
		c.Close()
	}
}

// receiveLoop drains responses; broadcast_tx results carry no information the
// load generator needs.
func (t *transacter) receiveLoop(connIndex int) {
	c := t.conns[connIndex]
	defer t.endingWg.Done()
	for {
		_, _, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.logger.Error(
					fmt.Sprintf("failed to read response on conn %d", connIndex),
					"err", err,
				)
			}
			return
		}
		if t.stopped || t.connsBroken[connIndex] {
			return
		}
	}
}

// sendLoop generates transactions at the configured rate.
func (t *transacter) sendLoop(connIndex int) {
	started := false
	defer func() {
		if !started {
			t.startingWg.Done()
		}
	}()
	c := t.conns[connIndex]

	c.SetPingHandler(func(message string) error {
		err := c.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(sendTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		} else if e, ok := err.(net.Error); ok && e.Temporary() {
			return nil
		}
		return err
	})

	logger := t.logger.With("addr", c.RemoteAddr())

	txNumber := 0

	pingsTicker := time.NewTicker(pingPeriod)
	txsTicker := time.NewTicker(1 * time.Second)
	defer func() {
		pingsTicker.Stop()
		txsTicker.Stop()
		t.endingWg.Done()
	}()

	for {
		select {
		case <-txsTicker.C:
			startTime := time.Now()
			endTime := startTime.Add(time.Second)
			numTxSent := t.Rate
			if !started {
				t.startingWg.Done()
				started = true
			}

			now := time.Now()
			for i := 0; i < t.Rate; i++ {
				paramsJSON, err := json.Marshal(map[string]interface{}{
					"tx": generateTx(connIndex, txNumber),
				})
				if err != nil {
					logger.Error("failed to encode params", "err", err)
					t.connsBroken[connIndex] = true
					return
				}

				c.SetWriteDeadline(now.Add(sendTimeout))
				err = c.WriteJSON(jsonrpc.RPCRequest{
					JSONRPC: "2.0",
					ID:      jsonrpc.JSONRPCStringID("loadgen"),
					Method:  "broadcast_tx",
					Params:  json.RawMessage(paramsJSON),
				})
				if err != nil {
					err = errors.Wrapf(err, "txs send failed on connection #%d", connIndex)
					t.connsBroken[connIndex] = true
					logger.Error(err.Error())
					return
				}

				// cache the time.Now() reads to save time
				if i%5 == 0 {
					now = time.Now()
					if now.After(endTime) {
						numTxSent = i + 1
						break
					}
				}
				txNumber++
			}

			t.sentPerSec.Update(int64(numTxSent))
			timeToSend := time.Since(startTime)
			logger.Debug(fmt.Sprintf("sent %d transactions", numTxSent), "took", timeToSend)
			if timeToSend < 1*time.Second {
				time.Sleep(time.Second - timeToSend)
			}

		case <-pingsTicker.C:
			c.SetWriteDeadline(time.Now().Add(sendTimeout))
			if err := c.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				err = errors.Wrapf(err, "failed to write ping message on conn #%d", connIndex)
				logger.Error(err.Error())
				t.connsBroken[connIndex] = true
			}
		}

		if t.stopped {
			return
		}
	}
}

// generateTx builds a unique payload; uniqueness matters because the mempool
// cache rejects duplicates.
func generateTx(connIndex, txNumber int) []byte {
	return []byte(fmt.Sprintf("load/%d/%d/%d/%x",
		connIndex, txNumber, time.Now().UnixNano(), rand.Int63()))
}

func connect(host string) (*websocket.Conn, *http.Response, error) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/websocket"}
	return websocket.DefaultDialer.Dial(u.String(), nil)
}

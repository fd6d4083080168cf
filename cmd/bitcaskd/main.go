// Command bitcaskd runs a Bitcask store behind the length-prefixed TCP
// protocol implemented in internal/protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kvforge/bitcask/internal/protocol"
	"github.com/kvforge/bitcask/internal/server"
	"github.com/kvforge/bitcask/store"
)

const (
	defaultDirectory        = "./data"
	defaultPort             = 6969
	defaultSegmentThreshold = 64 << 20
	defaultMergeInterval    = 5 * time.Minute
)

func main() {
	dir := flag.String("dir", defaultDirectory, "store directory")
	port := flag.Int("port", defaultPort, "TCP port to listen on")
	threshold := flag.Int64("segment-threshold", defaultSegmentThreshold, "active segment rollover threshold in bytes")
	mergeInterval := flag.Duration("merge-interval", defaultMergeInterval, "background merge period; 0 disables")
	syncOnPut := flag.Bool("sync-on-put", false, "fsync the active segment after every put")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "bitcaskd: build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	s, err := store.Open(*dir,
		store.WithSegmentThresholdBytes(*threshold),
		store.WithMergeInterval(*mergeInterval),
		store.WithSyncOnPut(*syncOnPut),
		store.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer s.Close()

	d := &daemon{store: s, logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", *port)
		serverErr <- server.Start(ctx, addr, d.handleConn)
	}()

	logger.Info("bitcaskd started", zap.String("dir", *dir), zap.Int("port", *port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
		<-serverErr
	case err := <-serverErr:
		if err != nil {
			logger.Error("server stopped", zap.Error(err))
		}
	}
}

type daemon struct {
	store  *store.Store
	logger *zap.Logger
}

func (d *daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		cmd, err := protocol.DecodeCommand(conn)
		if err != nil {
			return
		}
		d.dispatch(conn, cmd)
	}
}

func (d *daemon) dispatch(conn net.Conn, cmd *protocol.Command) {
	switch strings.ToLower(cmd.Cmd) {
	case "ping":
		d.reply(conn, "PONG!")
	case "set":
		d.handleSet(conn, cmd.Key, cmd.Val)
	case "get":
		d.handleGet(conn, cmd.Key)
	case "delete":
		d.handleDelete(conn, cmd.Key)
	case "exists":
		d.handleExists(conn, cmd.Key)
	case "count":
		d.handleCount(conn)
	case "list":
		d.handleList(conn)
	case "status":
		d.handleStatus(conn)
	case "merge":
		d.handleMerge(conn)
	case "help":
		d.reply(conn, strings.TrimSpace(helpText))
	default:
		d.reply(conn, "Invalid Command")
	}
}

func (d *daemon) handleSet(conn net.Conn, key, value string) {
	if err := d.store.Put(key, []byte(value)); err != nil {
		d.logger.Warn("set failed", zap.String("key", key), zap.Error(err))
		d.reply(conn, "error: "+err.Error())
		return
	}
	d.reply(conn, "ok")
}

func (d *daemon) handleGet(conn net.Conn, key string) {
	val, err := d.store.Get(key)
	if err != nil {
		d.reply(conn, "nil")
		return
	}
	d.reply(conn, string(val))
}

func (d *daemon) handleDelete(conn net.Conn, key string) {
	if err := d.store.Delete(key); err != nil {
		d.logger.Warn("delete failed", zap.String("key", key), zap.Error(err))
		d.reply(conn, "error: "+err.Error())
		return
	}
	d.reply(conn, "ok")
}

func (d *daemon) handleExists(conn net.Conn, key string) {
	if _, err := d.store.Get(key); err != nil {
		d.reply(conn, "false")
		return
	}
	d.reply(conn, "true")
}

func (d *daemon) handleCount(conn net.Conn) {
	keys, err := d.store.ListKeys()
	if err != nil {
		d.reply(conn, "error: "+err.Error())
		return
	}
	d.reply(conn, strconv.Itoa(len(keys)))
}

func (d *daemon) handleList(conn net.Conn) {
	keys, err := d.store.ListKeys()
	if err != nil {
		d.reply(conn, "error: "+err.Error())
		return
	}
	if len(keys) == 0 {
		d.reply(conn, "nil")
		return
	}
	d.reply(conn, "----- KEYS START -----\n"+strings.Join(keys, "\n")+"\n----- KEYS END -----")
}

func (d *daemon) handleStatus(conn net.Conn) {
	st, err := d.store.Stats()
	if err != nil {
		d.reply(conn, "error: "+err.Error())
		return
	}
	d.reply(conn, fmt.Sprintf(
		"keys=%d segments=%d live_bytes=%d total_bytes=%d active_segment=%d last_merge_at=%s",
		st.KeyCount, st.SegmentCount, st.LiveBytes, st.TotalBytes, st.ActiveSegment, st.LastMergeAt.Format(time.RFC3339),
	))
}

func (d *daemon) handleMerge(conn net.Conn) {
	if err := d.store.Merge(); err != nil {
		d.logger.Warn("merge failed", zap.Error(err))
		d.reply(conn, "error: "+err.Error())
		return
	}
	d.reply(conn, "ok")
}

func (d *daemon) reply(conn net.Conn, msg string) {
	encoded, err := protocol.EncodeResponse(msg)
	if err != nil {
		d.logger.Warn("encode response", zap.Error(err))
		return
	}
	if _, err := conn.Write(encoded); err != nil {
		d.logger.Debug("client disconnected mid-response", zap.Error(err))
	}
}

const helpText = `
Available Commands:

PING
  Check if the server is alive.
  Response: PONG!

SET <key> <value>
  Store a value for the given key. Overwrites an existing value.
  Response: ok

GET <key>
  Retrieve the value associated with the key.
  Response: value | nil

DELETE <key>
  Delete the key and its value.
  Response: ok

EXISTS <key>
  Check if a key exists.
  Response: true | false

COUNT
  Return the total number of live keys.
  Response: integer

LIST
  List all live keys.
  Response: list of keys | nil

STATUS
  Report key count, segment count, and space usage.
  Response: a summary line

MERGE
  Trigger a compaction pass over sealed segments.
  Response: ok
`

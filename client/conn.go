package client

import (
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"hubd/query"
	"hubd/subscriber"
	"hubd/watcher"
)

// Executor is the subset of *query.Engine a Connection drives. Defined here
// (rather than importing package query's concrete type everywhere) so
// tests can substitute a fake.
type Executor interface {
	Execute(q query.Query) (query.Result, error)
	Admit(req query.WatchRequest, sink watcher.Sink) (subscriber.WatcherID, error)
	Cancel(id subscriber.WatcherID)
}

// sink adapts one admitted watcher back to the client connection that
// admitted it, tagging every update with the originating request id so the
// client can demultiplex concurrent watches on one socket.
type sink struct {
	mu    *sync.Mutex
	conn  net.Conn
	reqID uint64
}

func (s *sink) Send(u watcher.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeMessage(s.conn, Response{ID: s.reqID, Update: ToUpdateWire(u)})
}

// Connection drives one client socket end to end: decode a Request,
// evaluate it against exec, write back a Response. The core event loop
// (§5) is single-threaded by design; exec is expected to serialize access
// across every concurrently-served Connection (see cmd/hubd), so this
// type itself holds no lock around exec calls, only around its own writes.
type Connection struct {
	conn     net.Conn
	exec     Executor
	log      *zap.SugaredLogger
	writeMu  sync.Mutex
	watchers map[uint64]subscriber.WatcherID
}

// Serve decodes requests from conn until it closes or a non-recoverable
// framing error occurs, dispatching each to exec and replying on conn.
func Serve(conn net.Conn, exec Executor, log *zap.SugaredLogger) error {
	c := &Connection{
		conn:     conn,
		exec:     exec,
		log:      log,
		watchers: make(map[uint64]subscriber.WatcherID),
	}
	return c.serve()
}

func (c *Connection) serve() error {
	for {
		var req Request
		if err := readMessage(c.conn, &req); err != nil {
			if err == io.EOF {
				c.cancelAll()
				return nil
			}
			c.cancelAll()
			return err
		}
		c.handle(req)
	}
}

func (c *Connection) cancelAll() {
	for _, wid := range c.watchers {
		c.exec.Cancel(wid)
	}
}

func (c *Connection) handle(req Request) {
	switch {
	case req.Cancel != nil:
		c.handleCancel(req)
	case req.Query != nil:
		c.handleQuery(req)
	default:
		c.reply(Response{ID: req.ID, Error: &ErrorWire{Message: "empty request"}})
	}
}

func (c *Connection) handleCancel(req Request) {
	if wid, ok := c.watchers[req.Cancel.WatcherID]; ok {
		c.exec.Cancel(wid)
		delete(c.watchers, req.Cancel.WatcherID)
	}
	c.reply(Response{ID: req.ID, Result: &ResultWire{}})
}

func (c *Connection) handleQuery(req Request) {
	qw := req.Query
	if qw.Action == "watch_value" {
		watchReq := ToWatchRequest(qw)
		s := &sink{mu: &c.writeMu, conn: c.conn, reqID: req.ID}
		wid, err := c.exec.Admit(watchReq, s)
		if err != nil {
			c.reply(Response{ID: req.ID, Error: &ErrorWire{Message: err.Error()}})
			return
		}
		c.watchers[uint64(wid)] = wid
		c.reply(Response{ID: req.ID, Admit: &WatchAdmitWire{WatcherID: uint64(wid)}})
		return
	}

	q := ToQuery(qw)
	res, err := c.exec.Execute(q)
	if err != nil {
		c.reply(Response{ID: req.ID, Error: &ErrorWire{Message: err.Error()}})
		return
	}
	c.reply(Response{ID: req.ID, Result: ToResultWire(res)})
}

func (c *Connection) reply(resp Response) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := writeMessage(c.conn, resp); err != nil && c.log != nil {
		c.log.Debugw("client write failed", "error", err)
	}
}

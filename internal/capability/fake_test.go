package capability

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koustreak/capcache/internal/native"
)

var errDriver = errors.New("driver error")

// trackingLock is a host execution lock that records balance.
type trackingLock struct {
	mu       sync.Mutex
	held     atomic.Bool
	locks    atomic.Int32
	unlocks  atomic.Int32
	violated atomic.Bool // a native call ran while held
}

func (l *trackingLock) Lock() {
	l.mu.Lock()
	l.held.Store(true)
	l.locks.Add(1)
}

func (l *trackingLock) Unlock() {
	l.held.Store(false)
	l.unlocks.Add(1)
	l.mu.Unlock()
}

// fakeConn is a scriptable native.Conn.
type fakeConn struct {
	version      string
	versionErr   error
	versionPanic bool
	describe     string
	describeErr  error
	openErr      error
	typeInfoErr  error
	fetchErr     error
	size         any
	sizeErr      error
	delay        time.Duration

	// started, when set, is closed as the version query begins. With
	// waitCancel the query then blocks until its ctx is done.
	started    chan struct{}
	waitCancel bool

	// lock, when set, must be released during every native call.
	lock *trackingLock

	versionCalls atomic.Int32
	opened       atomic.Int32
	closed       atomic.Int32
}

func goodConn() *fakeConn {
	return &fakeConn{version: "03.80", describe: "Y", size: int64(23)}
}

func (c *fakeConn) checkLock() {
	if c.lock != nil && c.lock.held.Load() {
		c.lock.violated.Store(true)
	}
}

func (c *fakeConn) QueryInfo(ctx context.Context, info native.InfoType) ([]byte, error) {
	c.checkLock()
	switch info {
	case native.InfoDriverVersion:
		c.versionCalls.Add(1)
		if c.started != nil {
			close(c.started)
		}
		if c.waitCancel {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		if c.delay > 0 {
			time.Sleep(c.delay)
		}
		if c.versionPanic {
			panic("adapter bug")
		}
		if c.versionErr != nil {
			return nil, c.versionErr
		}
		return []byte(c.version), nil
	case native.InfoDescribeParameter:
		if c.describeErr != nil {
			return nil, c.describeErr
		}
		return []byte(c.describe), nil
	}
	return nil, native.ErrNotSupported
}

func (c *fakeConn) OpenStatement(context.Context) (native.Stmt, error) {
	c.checkLock()
	if c.openErr != nil {
		return nil, c.openErr
	}
	c.opened.Add(1)
	return &fakeStmt{c: c}, nil
}

type fakeStmt struct {
	c      *fakeConn
	closed bool
}

func (s *fakeStmt) QueryTypeInfo(_ context.Context, typ native.TypeID) error {
	s.c.checkLock()
	if typ != native.TypeTimestamp {
		return native.ErrNotSupported
	}
	return s.c.typeInfoErr
}

func (s *fakeStmt) Fetch(context.Context) error {
	s.c.checkLock()
	return s.c.fetchErr
}

func (s *fakeStmt) ColumnValue(_ context.Context, column int, _ native.CType) (any, error) {
	s.c.checkLock()
	if column != native.TypeInfoColumnColumnSize {
		return nil, errors.New("wrong column")
	}
	if s.c.sizeErr != nil {
		return nil, s.c.sizeErr
	}
	return s.c.size, nil
}

func (s *fakeStmt) Close() error {
	s.c.checkLock()
	if !s.closed {
		s.closed = true
		s.c.closed.Add(1)
	}
	return nil
}

package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/wal"

	"TC/configs"
)

// LogManager appends an operation journal beside the backing store. Entries
// are buffered and flushed in batches by a background goroutine, so a write
// never waits on fsync. The journal is a diagnostic trail, not the source of
// truth; the recovery sweep reconciles store state without it.
type LogManager struct {
	latch  sync.Mutex
	lsn    uint64
	logs   *wal.Log
	buffer *wal.Batch
	cancel context.CancelFunc
}

func NewLogManager(name string) *LogManager {
	res := &LogManager{}
	if !configs.EnableOpJournal {
		return res
	}
	log, err := wal.Open(filepath.Join(configs.JournalDir, name), nil)
	configs.CheckError(err)
	res.logs = log
	res.lsn, err = log.LastIndex()
	configs.CheckError(err)
	res.buffer = &wal.Batch{}
	ctx, cancel := context.WithCancel(context.Background())
	res.cancel = cancel
	go res.batchSyncLogger(ctx, res.lsn)
	return res
}

func (c *LogManager) WriteOp(op LogOperation, key string, status int) {
	if c.logs == nil {
		return
	}
	c.latch.Lock()
	defer c.latch.Unlock()
	c.lsn++
	e := fmt.Sprintf("(%v,%v,%v)", op, key, status)
	c.buffer.Write(c.lsn, []byte(e))
}

func (c *LogManager) batchSyncLogger(ctx context.Context, initLSN uint64) {
	lastLSN := initLSN
	for {
		select {
		case <-time.After(configs.JournalBatchInterval):
			c.latch.Lock()
			if c.lsn != lastLSN {
				err := c.logs.WriteBatch(c.buffer)
				configs.CheckError(err)
				c.buffer.Clear()
				lastLSN = c.lsn
			}
			c.latch.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

func (c *LogManager) Close() {
	if c.logs == nil {
		return
	}
	c.cancel()
	c.latch.Lock()
	defer c.latch.Unlock()
	if c.buffer != nil {
		err := c.logs.WriteBatch(c.buffer)
		configs.CheckError(err)
		c.buffer.Clear()
	}
	configs.CheckError(c.logs.Close())
}

package worker

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type SqliteInfo struct {
	Path  string
	Table string
	// Schema is run once after opening, typically CREATE TABLE IF NOT EXISTS.
	Schema string
}

// DatabaseWriterWorker batches rows sent on SqlInfoChan and writes them in
// one transaction when the batch is full or the ticker fires.
type DatabaseWriterWorker struct {
	sqliteInfo               *SqliteInfo
	sqlFormat                string
	SqlInfoChan              chan []any
	sqlInfoCache             [][]any
	WriteToDatabaseLen       int
	WriteToDatabaseTickerLen time.Duration
	locker                   sync.Mutex
	db                       *sql.DB
	done                     chan struct{}
}

func NewDatabaseWorker(sqliteInfo *SqliteInfo, fieldIndex []string, writeToDbLen int, writeToDbTicker time.Duration, sqlChanNumber int) (*DatabaseWriterWorker, error) {
	if sqliteInfo == nil {
		return nil, fmt.Errorf("sqliteInfo is nil")
	}
	if err := os.MkdirAll(filepath.Dir(sqliteInfo.Path), 0750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", sqliteInfo.Path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if sqliteInfo.Schema != "" {
		if _, err := db.Exec(sqliteInfo.Schema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create table %s: %w", sqliteInfo.Table, err)
		}
	}
	if writeToDbLen <= 0 {
		writeToDbLen = 1
	}
	if writeToDbTicker <= 0 {
		writeToDbTicker = time.Second
	}
	worker := &DatabaseWriterWorker{
		sqliteInfo:               sqliteInfo,
		db:                       db,
		WriteToDatabaseLen:       writeToDbLen,
		WriteToDatabaseTickerLen: writeToDbTicker,
		SqlInfoChan:              make(chan []any, sqlChanNumber),
		sqlInfoCache:             make([][]any, 0, writeToDbLen),
		done:                     make(chan struct{}),
	}
	worker.SetFiledIndex(fieldIndex)
	return worker, nil
}

func (worker *DatabaseWriterWorker) SetFiledIndex(fieldIndex []string) {
	fieldIndexStr := bytes.NewBufferString("(")
	fieldEmptyStr := bytes.NewBufferString("(")
	for i := range fieldIndex {
		if i != 0 {
			fieldIndexStr.WriteString(",")
			fieldEmptyStr.WriteString(",")
		}
		fieldIndexStr.WriteString(fieldIndex[i])
		fieldEmptyStr.WriteString("?")
	}
	fieldIndexStr.WriteString(")")
	fieldEmptyStr.WriteString(")")
	worker.sqlFormat = fmt.Sprintf("INSERT OR REPLACE INTO %s %s VALUES %s",
		worker.sqliteInfo.Table, fieldIndexStr, fieldEmptyStr)
}

// Start consumes SqlInfoChan until it is closed or ctx is done, then writes
// what is left.
func (worker *DatabaseWriterWorker) Start(ctx context.Context) {
	defer close(worker.done)
	ticker := time.NewTicker(worker.WriteToDatabaseTickerLen)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-worker.SqlInfoChan:
			if !ok {
				worker.Do()
				return
			}
			worker.locker.Lock()
			worker.sqlInfoCache = append(worker.sqlInfoCache, data)
			full := len(worker.sqlInfoCache) >= worker.WriteToDatabaseLen
			worker.locker.Unlock()
			if full {
				worker.Do()
			}
		case <-ticker.C:
			logrus.Debugf("database writer worker ticker")
			worker.Do()
		case <-ctx.Done():
			worker.Do()
			return
		}
	}
}

func (worker *DatabaseWriterWorker) Do() {
	worker.locker.Lock()
	defer worker.locker.Unlock()
	if len(worker.sqlInfoCache) == 0 {
		return
	}
	defer func() {
		worker.sqlInfoCache = worker.sqlInfoCache[:0]
	}()
	tx, err := worker.db.Begin()
	if err != nil {
		logrus.Errorf("db.Begin is err: %v", err)
		return
	}
	for _, row := range worker.sqlInfoCache {
		if _, err := tx.Exec(worker.sqlFormat, row...); err != nil {
			logrus.Errorf("write to db is err: %v, sqlFormat: %s, caches: %+v", err, worker.sqlFormat, row)
			continue
		}
	}
	if err := tx.Commit(); err != nil {
		logrus.Errorf("commit is err: %v", err)
	}
}

// Close stops accepting rows, waits for Start to flush and closes the
// database. Start must have been called.
func (worker *DatabaseWriterWorker) Close() error {
	close(worker.SqlInfoChan)
	<-worker.done
	return worker.db.Close()
}

// DB exposes the underlying handle for reads.
func (worker *DatabaseWriterWorker) DB() *sql.DB {
	return worker.db
}

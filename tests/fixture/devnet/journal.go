// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// JournalEntry is a published event and the order it was published in.
type JournalEntry struct {
	Seq   uint64     `json:"seq"`
	Time  time.Time  `json:"time"`
	Event ChainEvent `json:"event"`
}

// Journal appends published events to a leveldb database keyed by
// big-endian sequence number, so iteration yields publication order.
type Journal struct {
	db *leveldb.DB

	lock sync.Mutex
	seq  uint64
}

// OpenJournal opens or creates the journal at [path].
func OpenJournal(path string) (*Journal, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open event journal %s: %w", path, err)
	}
	j, err := newJournal(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func newJournal(db *leveldb.DB) (*Journal, error) {
	j := &Journal{db: db}
	it := db.NewIterator(nil, nil)
	defer it.Release()
	if it.Last() {
		j.seq = binary.BigEndian.Uint64(it.Key())
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("failed to read event journal: %w", err)
	}
	return j, nil
}

// Append records [event] as the next entry.
func (j *Journal) Append(event ChainEvent) error {
	j.lock.Lock()
	defer j.lock.Unlock()

	entry := JournalEntry{
		Seq:   j.seq + 1,
		Time:  time.Now().UTC(),
		Event: event,
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, entry.Seq)
	if err := j.db.Put(key, value, nil); err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	j.seq = entry.Seq
	return nil
}

// Entries returns every entry in publication order.
func (j *Journal) Entries() ([]JournalEntry, error) {
	return readEntries(j.db)
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// ReadJournal reads the journal at [path] without modifying it. It fails
// while the owning network is running.
func ReadJournal(path string) ([]JournalEntry, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		ReadOnly:       true,
		ErrorIfMissing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open event journal %s: %w", path, err)
	}
	defer db.Close()
	return readEntries(db)
}

func readEntries(db *leveldb.DB) ([]JournalEntry, error) {
	it := db.NewIterator(nil, nil)
	defer it.Release()

	var entries []JournalEntry
	for it.Next() {
		var entry JournalEntry
		if err := json.Unmarshal(it.Value(), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate event journal: %w", err)
	}
	return entries, nil
}

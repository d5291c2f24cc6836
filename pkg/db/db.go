// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package db implements an append-only key-value log.
// The whole database is kept in memory; modifications are appended to the file
// and the file is rewritten once it mostly consists of stale records.
//
// File layout: a header (magic, format version, user version, run id) followed by frames.
// Each frame is magic, payload length, crc32 of the payload and the payload itself:
// uvarint key length, key, uvarint seq+1 (0 marks a deletion) and the xz-compressed value.
package db

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/seedforge/seedforge/pkg/log"
	"github.com/seedforge/seedforge/pkg/osutil"
	"github.com/ulikunitz/xz"
)

type DB struct {
	Version uint64    // user version, 0 for a new database
	RunID   uuid.UUID // assigned when the file is created, survives compaction

	filename string
	records  map[string]Record
	frames   int    // number of frames in the file
	pending  []byte // frames not yet appended to the file
}

type Record struct {
	Val []byte
	Seq uint64
}

const (
	fileMagic     = uint32(0x5eedb)
	frameMagic    = uint32(0xfee1bad)
	formatVersion = uint32(2)
	maxFrame      = 64 << 20
)

var errBadFrame = errors.New("bad frame")

// Records are small, a large dictionary only costs memory.
var xzConfig = xz.WriterConfig{DictCap: 64 << 10}

// Open loads the database, creating the file if necessary.
// A corrupted file is an error. With repair, Open instead returns the records
// read up to the corruption together with the error and rewrites the file.
func Open(filename string, repair bool) (*DB, error) {
	f, err := os.OpenFile(filename, os.O_RDONLY|os.O_CREATE, osutil.DefaultFilePerm)
	if err != nil {
		return nil, err
	}
	db := &DB{
		filename: filename,
		records:  make(map[string]Record),
	}
	readErr := db.load(bufio.NewReader(f))
	f.Close()
	if readErr != nil {
		log.Logf(0, "%v: %v", filename, readErr)
		if !repair {
			return nil, readErr
		}
	}
	if db.RunID == uuid.Nil {
		db.RunID = uuid.New()
	}
	if readErr != nil || db.frames == 0 || db.stale() {
		if err := db.compact(); err != nil {
			return nil, err
		}
	}
	return db, readErr
}

// Get returns the record with the key.
func (db *DB) Get(key string) (Record, bool) {
	rec, ok := db.records[key]
	return rec, ok
}

func (db *DB) Len() int {
	return len(db.records)
}

// Keys returns keys with the prefix in sorted order.
func (db *DB) Keys(prefix string) []string {
	var keys []string
	for key := range db.records {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (db *DB) Save(key string, val []byte, seq uint64) {
	if seq == math.MaxUint64 {
		panic("reserved seq")
	}
	if rec, ok := db.records[key]; ok && rec.Seq == seq && bytes.Equal(rec.Val, val) {
		return
	}
	db.records[key] = Record{val, seq}
	db.pending = appendFrame(db.pending, key, val, seq, true)
	db.frames++
}

func (db *DB) Delete(key string) {
	if _, ok := db.records[key]; !ok {
		return
	}
	delete(db.records, key)
	db.pending = appendFrame(db.pending, key, nil, 0, false)
	db.frames++
}

// Flush writes pending modifications, compacting the file if it's mostly stale.
func (db *DB) Flush() error {
	if db.stale() {
		return db.compact()
	}
	if len(db.pending) == 0 {
		return nil
	}
	f, err := os.OpenFile(db.filename, os.O_WRONLY|os.O_APPEND|os.O_CREATE, osutil.DefaultFilePerm)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(db.pending); err != nil {
		return err
	}
	db.pending = nil
	return nil
}

// BumpVersion sets the user version, rewriting the file if it changes.
func (db *DB) BumpVersion(version uint64) error {
	if db.Version == version {
		return db.Flush()
	}
	db.Version = version
	return db.compact()
}

func (db *DB) stale() bool {
	return db.frames > 2*len(db.records)+16
}

func (db *DB) compact() error {
	buf := binary.LittleEndian.AppendUint32(nil, fileMagic)
	buf = binary.LittleEndian.AppendUint32(buf, formatVersion)
	buf = binary.LittleEndian.AppendUint64(buf, db.Version)
	buf = append(buf, db.RunID[:]...)
	for _, key := range db.Keys("") {
		rec := db.records[key]
		buf = appendFrame(buf, key, rec.Val, rec.Seq, true)
	}
	tmp := db.filename + ".tmp"
	if err := osutil.WriteFile(tmp, buf); err != nil {
		return err
	}
	if err := os.Rename(tmp, db.filename); err != nil {
		return err
	}
	db.frames = len(db.records)
	db.pending = nil
	return nil
}

func appendFrame(buf []byte, key string, val []byte, seq uint64, live bool) []byte {
	payload := binary.AppendUvarint(nil, uint64(len(key)))
	payload = append(payload, key...)
	if !live {
		payload = binary.AppendUvarint(payload, 0)
	} else {
		payload = binary.AppendUvarint(payload, seq+1)
		payload = appendCompressed(payload, val)
	}
	buf = binary.LittleEndian.AppendUint32(buf, frameMagic)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(payload))
	return append(buf, payload...)
}

func appendCompressed(buf, val []byte) []byte {
	if len(val) == 0 {
		return buf
	}
	w := bytes.NewBuffer(buf)
	xw, err := xzConfig.NewWriter(w)
	if err == nil {
		_, err = xw.Write(val)
	}
	if err == nil {
		err = xw.Close()
	}
	if err != nil {
		panic(fmt.Sprintf("xz compression failed: %v", err))
	}
	return w.Bytes()
}

func (db *DB) load(r *bufio.Reader) error {
	var hdr [16]byte
	n, err := io.ReadFull(r, hdr[:8])
	if n == 0 && err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("truncated database header: %w", err)
	}
	if magic := binary.LittleEndian.Uint32(hdr[0:]); magic != fileMagic {
		return fmt.Errorf("bad database magic 0x%x", magic)
	}
	if ver := binary.LittleEndian.Uint32(hdr[4:]); ver != formatVersion {
		return fmt.Errorf("unsupported database format %v", ver)
	}
	if _, err := io.ReadFull(r, hdr[8:16]); err != nil {
		return fmt.Errorf("truncated database header: %w", err)
	}
	db.Version = binary.LittleEndian.Uint64(hdr[8:])
	if _, err := io.ReadFull(r, db.RunID[:]); err != nil {
		return fmt.Errorf("truncated database header: %w", err)
	}
	for {
		key, rec, live, err := readFrame(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read record %v: %w", db.frames, err)
		}
		db.frames++
		if live {
			db.records[key] = rec
		} else {
			delete(db.records, key)
		}
	}
}

func readFrame(r *bufio.Reader) (key string, rec Record, live bool, err error) {
	var hdr [12]byte
	if n, err := io.ReadFull(r, hdr[:]); err != nil {
		if n == 0 && err == io.EOF {
			return "", rec, false, io.EOF
		}
		return "", rec, false, io.ErrUnexpectedEOF
	}
	size := binary.LittleEndian.Uint32(hdr[4:])
	if binary.LittleEndian.Uint32(hdr[0:]) != frameMagic || size > maxFrame {
		return "", rec, false, errBadFrame
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", rec, false, io.ErrUnexpectedEOF
	}
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(hdr[8:]) {
		return "", rec, false, fmt.Errorf("%w: checksum mismatch", errBadFrame)
	}
	keyLen, n := binary.Uvarint(payload)
	if n <= 0 || keyLen > uint64(len(payload)-n) {
		return "", rec, false, errBadFrame
	}
	payload = payload[n:]
	key, payload = string(payload[:keyLen]), payload[keyLen:]
	seq, n := binary.Uvarint(payload)
	if n <= 0 {
		return "", rec, false, errBadFrame
	}
	if seq == 0 {
		return key, rec, false, nil
	}
	rec.Seq = seq - 1
	if payload = payload[n:]; len(payload) != 0 {
		xr, err := xz.NewReader(bytes.NewReader(payload))
		if err != nil {
			return "", rec, false, err
		}
		if rec.Val, err = io.ReadAll(xr); err != nil {
			return "", rec, false, err
		}
	}
	return key, rec, true, nil
}

// Create writes a new database with the records, replacing filename.
func Create(filename string, version uint64, records map[string]Record) error {
	db := &DB{
		Version:  version,
		RunID:    uuid.New(),
		filename: filename,
		records:  records,
	}
	if err := db.compact(); err != nil {
		return fmt.Errorf("failed to save database file: %w", err)
	}
	return nil
}

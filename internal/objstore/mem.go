// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package objstore ships reference implementations of base.ObjectStore
// and base.KeyMap: an in-memory backend used by tests, and an
// S3-mirroring decorator that copies LSM objects to S3 on every append.
package objstore

import (
	"bytes"
	"io"
	"sync"

	"github.com/loglsm/spacemap/internal/base"
)

// MemStore is a simple, mutex-guarded in-memory ObjectStore. Object ids
// are allocated sequentially starting at 1; block size is recorded but
// not itself enforced on Append — callers (Pool.closeSyncingLSMLocked)
// are responsible for padding each object to a whole number of blocks
// before anyone computes a block count from its byte length.
type MemStore struct {
	mu      sync.Mutex
	nextID  base.ObjectID
	objects map[base.ObjectID]*memObject
}

type memObject struct {
	blockSize int
	buf       bytes.Buffer
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[base.ObjectID]*memObject)}
}

// Create implements base.ObjectStore.
func (s *MemStore) Create(blockSize int) (base.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.objects[id] = &memObject{blockSize: blockSize}
	return id, nil
}

// Append implements base.ObjectStore.
func (s *MemStore) Append(id base.ObjectID, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return base.NotFoundErrorf("logsm: object %d not found", id)
	}
	obj.buf.Write(p)
	return nil
}

// Reader implements base.ObjectStore.
func (s *MemStore) Reader(id base.ObjectID) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return nil, base.NotFoundErrorf("logsm: object %d not found", id)
	}
	return io.NopCloser(bytes.NewReader(obj.buf.Bytes())), nil
}

// Length implements base.ObjectStore.
func (s *MemStore) Length(id base.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return 0, base.NotFoundErrorf("logsm: object %d not found", id)
	}
	return int64(obj.buf.Len()), nil
}

// Remove implements base.ObjectStore.
func (s *MemStore) Remove(id base.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id]; !ok {
		return base.NotFoundErrorf("logsm: object %d not found", id)
	}
	delete(s.objects, id)
	return nil
}

// MemKeyMap is a mutex-guarded in-memory base.KeyMap, standing in for a
// ZAP object.
type MemKeyMap struct {
	mu sync.Mutex
	m  map[uint64]uint64
}

// NewMemKeyMap returns an empty MemKeyMap.
func NewMemKeyMap() *MemKeyMap {
	return &MemKeyMap{m: make(map[uint64]uint64)}
}

// Lookup implements base.KeyMap.
func (k *MemKeyMap) Lookup(key uint64) (uint64, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.m[key]
	return v, ok
}

// Put implements base.KeyMap.
func (k *MemKeyMap) Put(key, value uint64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.m[key] = value
	return nil
}

// Delete implements base.KeyMap.
func (k *MemKeyMap) Delete(key uint64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.m, key)
	return nil
}

// ForEach implements base.KeyMap.
func (k *MemKeyMap) ForEach(fn func(key, value uint64)) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, value := range k.m {
		fn(key, value)
	}
	return nil
}

// Len implements base.KeyMap.
func (k *MemKeyMap) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}

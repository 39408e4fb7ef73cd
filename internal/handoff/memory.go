/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package handoff

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	descriptor *Descriptor
	expires    time.Time
}

// MemoryChannel keeps descriptors in process memory.
type MemoryChannel struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryChannel creates a channel whose entries expire after ttl.
func NewMemoryChannel(ttl time.Duration) *MemoryChannel {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryChannel{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// Put stores d under tag, replacing any previous descriptor.
func (c *MemoryChannel) Put(_ context.Context, tag string, d *Descriptor) error {
	if err := ValidateTag(tag); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()
	c.entries[tag] = memoryEntry{descriptor: d, expires: c.now().Add(c.ttl)}
	return nil
}

// TakeOnce returns and removes the descriptor stored under tag.
func (c *MemoryChannel) TakeOnce(_ context.Context, tag string) (*Descriptor, bool, error) {
	if err := ValidateTag(tag); err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[tag]
	if !ok {
		return nil, false, nil
	}
	delete(c.entries, tag)
	if !c.now().Before(entry.expires) {
		return nil, false, nil
	}
	return entry.descriptor, true, nil
}

// Len reports the number of unexpired entries.
func (c *MemoryChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()
	return len(c.entries)
}

// sweep drops expired entries. Caller holds mu.
func (c *MemoryChannel) sweep() {
	now := c.now()
	for tag, entry := range c.entries {
		if !now.Before(entry.expires) {
			delete(c.entries, tag)
		}
	}
}

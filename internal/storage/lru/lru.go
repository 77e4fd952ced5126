// Package lru implements the fixed-capacity cache both halves of the voxel
// store sit on: a hash-bucketed map, a doubly linked recency list, and a
// free list of unused nodes. All nodes are allocated once at construction;
// nothing on the steady-state path allocates.
//
// The cache does not evict on its own and does not know how to flush a
// value. The caller asks TakeFree first, falls back to EvictLRU, persists
// the evicted value itself, and reuses the node.
package lru

import (
	"voxelgrid.dev/internal/mathx"
)

// Node carries one cached value. Link fields belong to the cache.
type Node[V any] struct {
	Key mathx.Vec3
	Val V

	// recency list
	prev, next *Node[V]
	// hash bucket chain
	down   *Node[V]
	bucket int32
}

// Cache is not safe for concurrent use; the voxel store serializes access.
type Cache[V any] struct {
	buckets []*Node[V]
	free    *Node[V]
	front   *Node[V] // most recently used
	back    *Node[V] // least recently used
}

// New builds a cache with the given node capacity and bucket count. All
// capacity nodes start on the free list.
func New[V any](capacity, buckets int) *Cache[V] {
	c := &Cache[V]{buckets: make([]*Node[V], buckets)}
	for i := 0; i < capacity; i++ {
		c.ReleaseToFree(&Node[V]{})
	}
	return c
}

// BucketCount is the modulus for bucket hashes passed to Get and Insert.
func (c *Cache[V]) BucketCount() uint32 {
	return uint32(len(c.buckets))
}

// Get returns the node for key, or nil. A hit moves the node to the most
// recently used position.
func (c *Cache[V]) Get(key mathx.Vec3, bucket uint32) *Node[V] {
	n := c.buckets[bucket]
	for n != nil && n.Key != key {
		n = n.down
	}
	if n != nil {
		c.remove(n)
		c.Insert(n, bucket)
	}
	return n
}

// TakeFree pops a node off the free list, or nil if the heap is exhausted.
func (c *Cache[V]) TakeFree() *Node[V] {
	n := c.free
	if n != nil {
		c.free = n.next
		n.next = nil
	}
	return n
}

// EvictLRU unlinks and returns the least recently used node, or nil if the
// cache is empty. The caller owns flushing the value.
func (c *Cache[V]) EvictLRU() *Node[V] {
	n := c.back
	if n != nil {
		c.remove(n)
	}
	return n
}

// Insert links n at the head of its bucket chain and the front of the
// recency list. n.Key must be set before calling.
func (c *Cache[V]) Insert(n *Node[V], bucket uint32) {
	n.bucket = int32(bucket)
	n.down = c.buckets[bucket]
	c.buckets[bucket] = n

	n.prev = nil
	n.next = c.front
	if c.front != nil {
		c.front.prev = n
	} else {
		c.back = n
	}
	c.front = n
}

// ReleaseToFree pushes an unlinked node onto the free list.
func (c *Cache[V]) ReleaseToFree(n *Node[V]) {
	n.prev = nil
	n.down = nil
	n.next = c.free
	c.free = n
}

func (c *Cache[V]) remove(n *Node[V]) {
	// bucket chain
	p := &c.buckets[n.bucket]
	for *p != n {
		p = &(*p).down
	}
	*p = n.down
	n.down = nil

	// recency list
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.front = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.back = n.prev
	}
	n.prev = nil
	n.next = nil
}

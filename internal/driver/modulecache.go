package driver

import (
	"sync"

	"gale/internal/bytecode"
)

// ImageCache keeps emitted images in memory in front of an optional disk
// cache.
type ImageCache struct {
	mu     sync.RWMutex
	byHash map[Digest]*bytecode.Image
	disk   *DiskCache
}

// NewImageCache creates an ImageCache with the given capacity hint. disk
// may be nil.
func NewImageCache(capHint int, disk *DiskCache) *ImageCache {
	return &ImageCache{byHash: make(map[Digest]*bytecode.Image, capHint), disk: disk}
}

// Get retrieves an image by digest. Disk hits are promoted to memory.
func (c *ImageCache) Get(key Digest) (*bytecode.Image, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	img, ok := c.byHash[key]
	c.mu.RUnlock()
	if ok {
		return img, true, nil
	}
	img, ok, err := c.disk.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	c.mu.Lock()
	c.byHash[key] = img
	c.mu.Unlock()
	return img, true, nil
}

// Put inserts an image into memory and writes it through to disk.
func (c *ImageCache) Put(key Digest, img *bytecode.Image) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.byHash[key] = img
	c.mu.Unlock()
	return c.disk.Put(key, img)
}

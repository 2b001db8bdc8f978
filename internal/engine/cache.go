package engine

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// cacheKeyPrefix is how much of a prompt identifies an image.
const cacheKeyPrefix = 100

// CacheKey derives the image cache key from the first 100 characters of the
// trimmed prompt and the aspect ratio.
func CacheKey(prompt string, ratio AspectRatio) string {
	p := strings.TrimSpace(prompt)
	if utf8.RuneCountInString(p) > cacheKeyPrefix {
		p = string([]rune(p)[:cacheKeyPrefix])
	}
	return p + "_" + string(ratio)
}

// ImageCache holds generated images for the life of the process.
type ImageCache struct {
	mu     sync.RWMutex
	images map[string][]byte
}

func NewImageCache() *ImageCache {
	return &ImageCache{images: make(map[string][]byte)}
}

func (c *ImageCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.images[key]
	return img, ok
}

func (c *ImageCache) Put(key string, img []byte) {
	c.mu.Lock()
	c.images[key] = img
	c.mu.Unlock()
}

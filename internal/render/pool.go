package render

import (
	"image"
	"sync"
)

// surfacePool recycles frame-sized RGBA buffers, keyed by bounds.
type surfacePool struct {
	mu    sync.RWMutex
	pools map[image.Rectangle]*sync.Pool
}

var surfaces = &surfacePool{pools: make(map[image.Rectangle]*sync.Pool)}

// GetSurface returns a w×h RGBA surface. Its contents are unspecified.
func GetSurface(w, h int) *image.RGBA {
	return surfaces.get(image.Rect(0, 0, w, h))
}

// PutSurface returns a surface obtained from GetSurface for reuse.
func PutSurface(img *image.RGBA) {
	surfaces.put(img)
}

func (p *surfacePool) get(rect image.Rectangle) *image.RGBA {
	p.mu.RLock()
	pool, ok := p.pools[rect]
	p.mu.RUnlock()

	if !ok {
		p.mu.Lock()
		pool, ok = p.pools[rect]
		if !ok {
			pool = &sync.Pool{
				New: func() any { return image.NewRGBA(rect) },
			}
			p.pools[rect] = pool
		}
		p.mu.Unlock()
	}

	return pool.Get().(*image.RGBA)
}

func (p *surfacePool) put(img *image.RGBA) {
	if img == nil {
		return
	}
	p.mu.RLock()
	pool, ok := p.pools[img.Rect]
	p.mu.RUnlock()
	if ok {
		pool.Put(img)
	}
}

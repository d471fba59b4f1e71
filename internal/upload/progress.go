package upload

import (
	"io"
	"sync"
)

// progressReader reports the fraction of size read so far after every
// chunk. Reports are clamped to [0,1] and never run concurrently; the HTTP
// transport may read the body from its own goroutine.
type progressReader struct {
	r    io.Reader
	size int64

	mu       sync.Mutex
	read     int64
	done     bool
	onUpdate func(float64)
}

func newProgressReader(r io.Reader, size int64, onUpdate func(float64)) *progressReader {
	return &progressReader{r: r, size: size, onUpdate: onUpdate}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)

	p.mu.Lock()
	defer p.mu.Unlock()
	if n > 0 {
		p.read += int64(n)
		p.reportLocked(p.fractionLocked())
	}
	if err == io.EOF {
		p.reportLocked(1)
	}
	return n, err
}

// finish reports 1.0 unless it was already reported.
func (p *progressReader) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reportLocked(1)
}

func (p *progressReader) fractionLocked() float64 {
	if p.size <= 0 {
		return 1
	}
	f := float64(p.read) / float64(p.size)
	if f > 1 {
		f = 1
	}
	return f
}

func (p *progressReader) reportLocked(f float64) {
	if p.onUpdate == nil || p.done {
		return
	}
	if f >= 1 {
		f = 1
		p.done = true
	}
	p.onUpdate(f)
}

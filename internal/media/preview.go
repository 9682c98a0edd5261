package media

import (
	"sync"

	"github.com/google/uuid"

	"hostflow/internal/domain"
)

const previewScheme = "blob:hostflow/"

// Previews hands out temporary object URLs for local files. URLs stay valid
// until revoked; Close releases everything when the owning form goes away.
type Previews struct {
	mu    sync.Mutex
	files map[string]domain.File
}

func NewPreviews() *Previews {
	return &Previews{files: map[string]domain.File{}}
}

// Create allocates a preview URL for f.
func (p *Previews) Create(f domain.File) string {
	url := previewScheme + uuid.NewString()
	p.mu.Lock()
	p.files[url] = f
	p.mu.Unlock()
	return url
}

func (p *Previews) Open(url string) (domain.File, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.files[url]
	return f, ok
}

// Revoke releases url. Unknown URLs are ignored.
func (p *Previews) Revoke(url string) {
	p.mu.Lock()
	delete(p.files, url)
	p.mu.Unlock()
}

func (p *Previews) Close() {
	p.mu.Lock()
	clear(p.files)
	p.mu.Unlock()
}

// Len returns the number of live URLs.
func (p *Previews) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.files)
}

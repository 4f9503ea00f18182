package fakes

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-git/v5"
)

// Cloner records clone calls and materialises Files into the destination
// instead of contacting a remote.
type Cloner struct {
	mu    sync.Mutex
	Files map[string]string
	Err   error
	Calls []*git.CloneOptions
	Dests []string
}

// Clone implements repo.Cloner.
func (c *Cloner) Clone(_ context.Context, dest string, opts *git.CloneOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, opts)
	c.Dests = append(c.Dests, dest)
	if c.Err != nil {
		return c.Err
	}
	for rel, body := range c.Files {
		path := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return err
		}
	}
	return nil
}

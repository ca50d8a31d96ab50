// Package memory provides a content addressable store held in memory.
// It receives file content of archives that cannot be read twice.
package memory

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"github.com/malt3/abstractfs-core/api"
	coresri "github.com/malt3/abstractfs-core/sri"
)

// ErrReadOnly is returned when writing new content to a read only CAS.
var ErrReadOnly = errors.New("memory: cas is readonly")

// CAS maps sri strings to content.
type CAS struct {
	mux      sync.RWMutex
	m        map[string][]byte
	size     int64
	readonly bool
}

func NewCAS(readonly bool) *CAS {
	return &CAS{
		m:        map[string][]byte{},
		readonly: readonly,
	}
}

// Open returns the content stored for sri.
func (c *CAS) Open(sri string) (io.ReadCloser, error) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	b, ok := c.m[sri]
	if !ok {
		return nil, fs.ErrNotExist
	}

	return io.NopCloser(bytes.NewReader(b)), nil
}

// Write stores the content of r under sri after verifying that it matches.
// Content that is already stored is not read again.
func (c *CAS) Write(sri string, r io.Reader) error {
	c.mux.Lock()
	defer c.mux.Unlock()

	if _, ok := c.m[sri]; ok {
		return nil
	}
	if c.readonly {
		return ErrReadOnly
	}

	integrity, err := coresri.FromString(sri)
	if err != nil {
		return fmt.Errorf("checking sri on write: %w", err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := integrity.Validate(bytes.NewReader(b)); err != nil {
		return fmt.Errorf("validating sri on write: %w", err)
	}

	c.m[sri] = b
	c.size += int64(len(b))
	return nil
}

// Len returns the number of stored objects and their total size in bytes.
func (c *CAS) Len() (objects int, size int64) {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return len(c.m), c.size
}

var _ api.CAS = (*CAS)(nil)

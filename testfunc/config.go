package testfunc

import (
	"fmt"

	"github.com/chriskuehl/vcfrange/variants"
	"github.com/chriskuehl/vcfrange/variants/config"
	"github.com/chriskuehl/vcfrange/variants/storage"
)

type ConfigOption func(*config.Config) error

func WithStorageBackend(backend storage.Backend) ConfigOption {
	return func(c *config.Config) error {
		c.StorageBackend = backend
		return nil
	}
}

func WithBufferCapacity(n int) ConfigOption {
	return func(c *config.Config) error {
		if n <= 0 {
			return fmt.Errorf("buffer capacity must be positive, got %d", n)
		}
		c.BufferCapacity = n
		c.MaxFieldLength = n
		return nil
	}
}

func NewConfig(opt ...ConfigOption) *config.Config {
	c := variants.NewConfig()
	c.Version = "(test)"
	c.StorageBackend = NewMemoryStorageBackend()

	for _, o := range opt {
		if err := o(c); err != nil {
			panic(fmt.Sprintf("unexpected error: %v", err))
		}
	}

	return c
}

package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"
)

// ValueGenerator produces opaque token values. Implementations decide the
// entropy source; callers must not assume cryptographic strength unless
// they injected CryptoGenerator.
type ValueGenerator interface {
	Generate(size int) (string, error)
}

// CryptoGenerator draws from the platform CSPRNG. This is the default for
// every component that mints secrets.
type CryptoGenerator struct{}

func (CryptoGenerator) Generate(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("secure random source failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// FallbackGenerator is a non-cryptographic generator for environments
// without a usable CSPRNG. Values are unique enough for ids but guessable;
// select it explicitly, it is never picked up by ambient probing.
type FallbackGenerator struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

func NewFallbackGenerator() *FallbackGenerator {
	return &FallbackGenerator{
		rng: mrand.New(mrand.NewSource(time.Now().UnixNano())),
	}
}

func (g *FallbackGenerator) Generate(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(g.rng.Intn(256))
	}
	return hex.EncodeToString(buf), nil
}

// Package idgen produces random hexadecimal identifiers used to correlate a
// purchaser with the jobs it submits.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/osvaldoandrade/riskdesk/internal/metrics"
)

// DefaultPurchaserBytes is the length used for identifier_from_purchaser.
const DefaultPurchaserBytes = 8

// Source tells which entropy source produced an identifier.
type Source string

const (
	SourceCrypto Source = "crypto"
	// SourcePseudo identifiers come from math/rand and carry no
	// unpredictability guarantee.
	SourcePseudo Source = "pseudo"
)

type Generator struct {
	strong io.Reader
	logger *slog.Logger

	mu   sync.Mutex
	weak *mathrand.Rand
}

type Option func(*Generator)

// WithReader replaces crypto/rand as the strong source.
func WithReader(r io.Reader) Option {
	return func(g *Generator) { g.strong = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

func New(opts ...Option) *Generator {
	g := &Generator{
		strong: rand.Reader,
		weak:   mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Generate returns 2*byteLength lowercase hex characters. byteLength below 1
// is treated as 1.
func (g *Generator) Generate(byteLength int) string {
	s, _ := g.GenerateWithSource(byteLength)
	return s
}

func (g *Generator) GenerateWithSource(byteLength int) (string, Source) {
	if byteLength < 1 {
		byteLength = 1
	}
	b := make([]byte, byteLength)
	if g.strong != nil {
		_, err := io.ReadFull(g.strong, b)
		if err == nil {
			return hex.EncodeToString(b), SourceCrypto
		}
		g.logger.Warn("strong random source unavailable; identifier uses pseudo-random fallback", "err", err)
	}
	metrics.IdentifierFallbackTotal.Inc()
	g.mu.Lock()
	_, _ = g.weak.Read(b)
	g.mu.Unlock()
	return hex.EncodeToString(b), SourcePseudo
}

var defaultGenerator = New()

// Hex generates an identifier with the package default generator.
func Hex(byteLength int) string {
	return defaultGenerator.Generate(byteLength)
}

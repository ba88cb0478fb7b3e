// Package digest computes content fingerprints over byte streams. It has no
// opinion on algorithm strength; weak algorithms are gated by the policy
// package at selection time.
package digest

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
)

// DefaultChunkSize is the read size used when streaming into a Hasher.
const DefaultChunkSize = 64 << 10

// ErrAlgorithmMismatch is returned when comparing digests produced by
// different algorithms.
var ErrAlgorithmMismatch = errors.New("digest algorithms differ")

// Digest is a binary fingerprint tagged with the algorithm that produced it.
type Digest struct {
	Algorithm Algorithm
	Sum       []byte
}

func (d Digest) Hex() string { return hex.EncodeToString(d.Sum) }

func (d Digest) String() string { return d.Algorithm.String() + ":" + d.Hex() }

// Equal compares two digests in constant time with respect to their
// content. Digests of different algorithms are not comparable.
func (d Digest) Equal(other Digest) (bool, error) {
	if d.Algorithm != other.Algorithm {
		return false, fmt.Errorf("%w: %s vs %s", ErrAlgorithmMismatch, d.Algorithm, other.Algorithm)
	}
	return ConstantTimeEqual(d.Sum, other.Sum), nil
}

// ConstantTimeEqual compares a and b without short-circuiting on the first
// differing byte. Lengths are not secret.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ParseHex decodes a hex digest for alg. Upper- and lowercase are accepted.
func ParseHex(alg Algorithm, s string) (Digest, error) {
	const errCtx = "parsing digest"

	s = strings.TrimSpace(s)
	if len(s) != alg.HexLen() {
		return Digest{}, fmt.Errorf("%s: %s digest must be %d hex chars, got %d",
			errCtx, alg, alg.HexLen(), len(s))
	}
	sum, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("%s: %w", errCtx, err)
	}
	return Digest{Algorithm: alg, Sum: sum}, nil
}

// Hasher accumulates input for one algorithm. It implements io.Writer.
type Hasher struct {
	alg Algorithm
	h   hash.Hash
}

func New(alg Algorithm) (*Hasher, error) {
	h, err := newHash(alg)
	if err != nil {
		return nil, err
	}
	return &Hasher{alg: alg, h: h}, nil
}

func (h *Hasher) Algorithm() Algorithm { return h.alg }

// Write never returns an error.
func (h *Hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

func (h *Hasher) Sum() Digest {
	return Digest{Algorithm: h.alg, Sum: h.h.Sum(nil)}
}

func Bytes(alg Algorithm, data []byte) (Digest, error) {
	h, err := New(alg)
	if err != nil {
		return Digest{}, err
	}
	_, _ = h.Write(data)
	return h.Sum(), nil
}

// Reader streams r into a new Hasher using buf as scratch space. onProgress,
// when set, receives the size of every chunk consumed.
func Reader(alg Algorithm, r io.Reader, buf []byte, onProgress func(n int64)) (Digest, int64, error) {
	h, err := New(alg)
	if err != nil {
		return Digest{}, 0, err
	}
	if len(buf) == 0 {
		buf = make([]byte, DefaultChunkSize)
	}

	var w io.Writer = h
	if onProgress != nil {
		w = &progressWriter{w: h, fn: onProgress}
	}

	n, err := io.CopyBuffer(w, r, buf)
	if err != nil {
		return Digest{}, n, err
	}
	return h.Sum(), n, nil
}

type progressWriter struct {
	w  io.Writer
	fn func(n int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.fn(int64(n))
	}
	return n, err
}

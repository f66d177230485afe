package strategy

import (
	"unicode/utf16"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
)

// ipHashStrategy maps a client IP onto the healthy subset by hash modulo its
// length. Assignments are sticky only while the healthy set is unchanged.
type ipHashStrategy struct{}

func NewIPHashStrategy() Strategy {
	return &ipHashStrategy{}
}

func (s *ipHashStrategy) Name() string {
	return IPHash
}

func (s *ipHashStrategy) SelectBackend(backends []*backend.Backend, clientIP string) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	h := int64(HashIP(clientIP))
	if h < 0 {
		h = -h
	}

	return backends[h%int64(len(backends))]
}

// HashIP computes hash = hash*31 + c over the UTF-16 code units of ip with
// 32-bit signed wraparound.
func HashIP(ip string) int32 {
	var hash int32
	for _, c := range utf16.Encode([]rune(ip)) {
		hash = hash*31 + int32(c)
	}
	return hash
}

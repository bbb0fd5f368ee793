package app

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"future-kids-game-service/internal/domain"
)

const (
	codeDigits = 6
	codeSpace  = 1000000
	// codeMaxAttempts bounds random probing; with the active-session count
	// anywhere near sane this never trips before a free code is found.
	codeMaxAttempts = 500
)

// CodeGenerator produces unique, human-enterable 6-digit game codes.
type CodeGenerator struct {
	randInt func() (uint32, error)
}

func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{randInt: cryptoRandUint32}
}

func cryptoRandUint32() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// Generate returns a 6-digit numeric code not present in inUse. It retries
// on collision; only when the active-session count approaches the full
// 10^6 space does it give up with ErrCodeSpaceExhausted.
func (g *CodeGenerator) Generate(inUse map[string]struct{}) (string, error) {
	if len(inUse) >= codeSpace {
		return "", domain.ErrCodeSpaceExhausted
	}
	for i := 0; i < codeMaxAttempts; i++ {
		n, err := g.randInt()
		if err != nil {
			return "", fmt.Errorf("generate game code: %w", err)
		}
		code := fmt.Sprintf("%0*d", codeDigits, n%codeSpace)
		if _, taken := inUse[code]; !taken {
			return code, nil
		}
	}
	// The random probe kept colliding, so the space is nearly full. A linear
	// scan either finds one of the few remaining codes or proves exhaustion.
	for n := 0; n < codeSpace; n++ {
		code := fmt.Sprintf("%0*d", codeDigits, n)
		if _, taken := inUse[code]; !taken {
			return code, nil
		}
	}
	return "", domain.ErrCodeSpaceExhausted
}

package shortcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
)

// Generator стратегия генерации кодов
type Generator interface {
	Generate() (string, error)
}

// GeneratorFunc позволяет использовать функцию как Generator
type GeneratorFunc func() (string, error)

func (f GeneratorFunc) Generate() (string, error) {
	return f()
}

// randomGenerator равномерно выбирает символы алфавита через crypto/rand
type randomGenerator struct {
	length int
}

// NewRandomGenerator создаёт генератор случайных кодов заданной длины
func NewRandomGenerator(length int) (Generator, error) {
	if length < MinLength || length > MaxLength {
		return nil, fmt.Errorf("code length %d out of range [%d, %d]", length, MinLength, MaxLength)
	}
	return &randomGenerator{length: length}, nil
}

func (g *randomGenerator) Generate() (string, error) {
	max := big.NewInt(int64(len(Alphabet)))
	result := make([]byte, g.length)
	for i := range result {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random: %w", err)
		}
		result[i] = Alphabet[num.Int64()]
	}
	return string(result), nil
}

// Sequence возвращает детерминированный генератор, выдающий коды по порядку.
// После исчерпания списка повторяет последний код.
// Безопасен для конкурентного использования.
func Sequence(codes ...string) Generator {
	var mu sync.Mutex
	i := 0
	return GeneratorFunc(func() (string, error) {
		if len(codes) == 0 {
			return "", fmt.Errorf("empty code sequence")
		}
		mu.Lock()
		defer mu.Unlock()

		code := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return code, nil
	})
}

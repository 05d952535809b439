// Package codegen generates the anonymous codes that stand in for real
// identities (clients, drivers, missions, corporate accounts) and the short
// confirmation codes and PINs used to close out a mission.
package codegen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"ombra/db"
	"ombra/models"

	"go.uber.org/zap"
)

// Alphabet excludes visually ambiguous characters (no 0/O/1/I/L).
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	suffixLength      = 5
	confirmationLen   = 6
	maxReserveRetries = 10
)

// CodeType is the namespace of an anonymous code.
type CodeType string

const (
	CodeClient    CodeType = "client"
	CodeDriver    CodeType = "driver"
	CodeMission   CodeType = "mission"
	CodeCorporate CodeType = "corporate"
)

var prefixes = map[CodeType]string{
	CodeClient:    "OT",
	CodeDriver:    "DR",
	CodeMission:   "M",
	CodeCorporate: "CORP",
}

// ErrExhaustedRetries is returned when no unique code could be reserved
// within the retry budget. Callers must treat it as fatal for the enclosing
// operation.
var ErrExhaustedRetries = errors.New("code generation exhausted retries")

// Store is the persistence surface the generator needs: a store-enforced
// unique reservation per namespace. A collision returns db.ErrAlreadyExists.
type Store interface {
	ReserveCode(ctx context.Context, namespace, code string) error
}

// Generator reserves unique anonymous codes against the store.
type Generator struct {
	store  Store
	logger *zap.SugaredLogger
}

// NewGenerator creates a code generator.
func NewGenerator(store Store, logger *zap.SugaredLogger) *Generator {
	return &Generator{store: store, logger: logger}
}

// GenerateAnonymousCode builds a unique PREFIX[-EXTRA]-RANDOM5 code in the
// given namespace. additionalPrefix, when non-empty, is embedded between the
// namespace prefix and the random suffix (e.g. an organization code). The
// random suffix is retried up to 10 times on collision; reservation happens
// at the store so two concurrent callers can never both claim the same code.
func (g *Generator) GenerateAnonymousCode(ctx context.Context, codeType CodeType, additionalPrefix string) (string, error) {
	prefix, ok := prefixes[codeType]
	if !ok {
		return "", fmt.Errorf("unknown code type: %s", codeType)
	}

	for attempt := 0; attempt < maxReserveRetries; attempt++ {
		candidate := prefix
		if additionalPrefix != "" {
			candidate += "-" + additionalPrefix
		}
		candidate += "-" + randomString(suffixLength)

		err := g.store.ReserveCode(ctx, string(codeType), candidate)
		if err == nil {
			return candidate, nil
		}
		if errors.Is(err, db.ErrAlreadyExists) {
			g.logger.Debugw("code collision, retrying",
				"type", codeType,
				"attempt", attempt+1,
			)
			continue
		}
		return "", fmt.Errorf("reserve %s code: %w", codeType, err)
	}

	return "", fmt.Errorf("%w for type %s", ErrExhaustedRetries, codeType)
}

// GenerateConfirmationCode returns 6 random characters from the restricted
// alphabet.
func GenerateConfirmationCode() string {
	return randomString(confirmationLen)
}

// GeneratePIN returns a 6-digit decimal PIN in [100000, 999999].
func GeneratePIN() string {
	n := randomInt(900000)
	return fmt.Sprintf("%06d", 100000+n)
}

// ValidateConfirmationCode compares a presented code against the stored one,
// case-insensitively.
func ValidateConfirmationCode(input, stored string) bool {
	return strings.EqualFold(input, stored)
}

// MaskRealName keeps the first name token intact and reduces every following
// token to its first character plus "***". A single-token name becomes its
// first character plus "***"; empty input becomes "***".
func MaskRealName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "***"
	}
	if len(fields) == 1 {
		return string([]rune(fields[0])[0]) + "***"
	}

	parts := []string{fields[0]}
	for _, f := range fields[1:] {
		parts = append(parts, string([]rune(f)[0])+"***")
	}
	return strings.Join(parts, " ")
}

// AnonymousCodeFor maps a user role to its code namespace.
func AnonymousCodeFor(role models.UserRole) CodeType {
	if role == models.RoleDriver {
		return CodeDriver
	}
	return CodeClient
}

func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = Alphabet[randomInt(len(Alphabet))]
	}
	return string(b)
}

func randomInt(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		// crypto/rand only fails when the platform entropy source is broken;
		// nothing sensible to do but stop.
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return int(n.Int64())
}

// Package auth issues and verifies the bearer tokens that identify a caller.
// A token's subject is the caller's account address; it plays the part of the
// transaction sender for every state-changing request.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim of every token this service signs.
const Issuer = "contract-factory"

// SecretEnv names the environment variable holding the HMAC secret.
const SecretEnv = "FACTORY_JWT_SECRET"

var (
	// jwtSecret holds the validated JWT secret
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// ErrInvalidSubject is returned when a token's subject is not an account address.
var ErrInvalidSubject = errors.New("token subject is not an account address")

// Claims represents the JWT claims structure. Subject carries the caller's
// address in EIP-55 form.
type Claims struct {
	jwt.RegisteredClaims
}

// Caller returns the account address in the token subject.
func (c *Claims) Caller() (common.Address, error) {
	if !common.IsHexAddress(c.Subject) {
		return common.Address{}, ErrInvalidSubject
	}
	addr := common.HexToAddress(c.Subject)
	if addr == (common.Address{}) {
		return common.Address{}, ErrInvalidSubject
	}
	return addr, nil
}

// IsDevMode reports whether the process runs in development mode.
func IsDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	return devMode == "true" || devMode == "1" || os.Getenv("GIN_MODE") == "debug"
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// ValidateJWTSecret checks that the JWT secret is configured. Outside dev
// mode a missing FACTORY_JWT_SECRET is an error; in dev mode a random secret
// is generated, so tokens do not survive a restart. Call it at startup.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv(SecretEnv)

		if secret == "" {
			if IsDevMode() {
				jwtSecret = generateRandomSecret()
				slog.Warn(SecretEnv + " not set, using an auto-generated secret; tokens will not survive a restart")
			} else {
				jwtSecretErr = errors.New("SECURITY ERROR: " + SecretEnv + " environment variable is required in production. " +
					"Generate a secure secret with: openssl rand -hex 32")
			}
			return
		}

		if len(secret) < 32 {
			slog.Warn(SecretEnv + " is shorter than the recommended 32 characters")
		}

		jwtSecret = secret
	})

	return jwtSecretErr
}

// GetJWTSecret retrieves the validated JWT secret.
// Panics if the secret cannot be validated.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

// GenerateJWT signs a token identifying caller. A zero expiresIn means one hour.
func GenerateJWT(caller common.Address, expiresIn time.Duration) (string, error) {
	if caller == (common.Address{}) {
		return "", ErrInvalidSubject
	}
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Subject:   caller.Hex(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(GetJWTSecret()))
}

// ValidateJWT parses and validates a token signed by GenerateJWT
func ValidateJWT(tokenString string) (*Claims, error) {
	secret := GetJWTSecret()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}

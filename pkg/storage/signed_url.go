package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const downloadAudience = "export-download"

// DownloadClaims is the content of a verified download token.
type DownloadClaims struct {
	JobID     string
	Path      string
	ExpiresAt time.Time
}

type downloadToken struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

// SignedURLSigner issues short lived HS256 tokens naming one stored export.
// The audience keeps them from being accepted as access tokens and the
// other way round.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer. A non-positive ttl means one day.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a token for relPath of job and the moment it expires.
func (s *SignedURLSigner) Generate(jobID, relPath string) (string, time.Time, error) {
	if jobID == "" || relPath == "" {
		return "", time.Time{}, errors.New("download token needs a job and a path")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("download signing secret missing")
	}
	expires := jwt.NewNumericDate(s.now().Add(s.ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, downloadToken{
		Path: relPath,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   jobID,
			Audience:  jwt.ClaimStrings{downloadAudience},
			ExpiresAt: expires,
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign download token: %w", err)
	}
	return signed, expires.Time, nil
}

// Parse verifies a token. With allowExpired the expiry is not enforced so
// cleanup can still locate files of old jobs; the signature always is.
func (s *SignedURLSigner) Parse(raw string, allowExpired bool) (DownloadClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(downloadAudience),
		jwt.WithTimeFunc(s.now),
	}
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	} else {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	var claims downloadToken
	if _, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...); err != nil {
		return DownloadClaims{}, fmt.Errorf("invalid download token: %w", err)
	}
	if claims.Subject == "" || claims.Path == "" || !audienceIs(claims.Audience, downloadAudience) {
		return DownloadClaims{}, errors.New("invalid download token: missing claims")
	}
	out := DownloadClaims{JobID: claims.Subject, Path: claims.Path}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func audienceIs(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// Package pass renders the entry pass of a registration as a QR code whose
// payload is encrypted with the service's QR secret.
package pass

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"ms-storefront/internal/models"

	"github.com/skip2/go-qrcode"
)

// Size is the edge length of generated PNGs in pixels.
const Size = 256

var ErrMalformedPass = errors.New("malformed pass payload")

// Claims is what a scanned pass decrypts to.
type Claims struct {
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	UserID         string    `json:"user_id"`
	Seats          int64     `json:"seats"`
	IssuedAt       time.Time `json:"issued_at"`
}

type Generator struct {
	key []byte
}

func NewGenerator(secret string) *Generator {
	sum := sha256.Sum256([]byte(secret)) // AES-256 key
	return &Generator{key: sum[:]}
}

// PNG encodes the pass of reg as a QR PNG.
func (g *Generator) PNG(reg *models.EventRegistration, issuedAt time.Time) ([]byte, error) {
	payload, err := g.Payload(reg, issuedAt)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(payload, qrcode.Medium, Size)
}

// Payload returns the encrypted, URL-safe text carried by the QR code.
func (g *Generator) Payload(reg *models.EventRegistration, issuedAt time.Time) (string, error) {
	data, err := json.Marshal(Claims{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
		Seats:          reg.SeatsReserved,
		IssuedAt:       issuedAt,
	})
	if err != nil {
		return "", err
	}
	return g.seal(data)
}

// Open decrypts a scanned payload.
func (g *Generator) Open(payload string) (*Claims, error) {
	raw, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrMalformedPass
	}
	block, err := aes.NewCipher(g.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, ErrMalformedPass
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrMalformedPass
	}

	var c Claims
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, ErrMalformedPass
	}
	return &c, nil
}

func (g *Generator) seal(data []byte) (string, error) {
	block, err := aes.NewCipher(g.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(gcm.Seal(nonce, nonce, data, nil)), nil
}

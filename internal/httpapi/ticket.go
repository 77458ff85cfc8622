package httpapi

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/config"
)

// ticketSecret is generated fresh per process start: WebSocket tickets
// never need to survive a restart, so there is no persistence concern and
// no key-rotation story to build (spec §6: "a short-lived, single-use
// ticket" scoped to one upgrade attempt).
var ticketSecret = func() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("httpapi: failed to seed ticket secret: " + err.Error())
	}
	return b
}()

var ticketTTL = 30 * time.Second

// SetTicketTTL overrides the default ticket lifetime; cmd/coherad calls
// this once at startup from the loaded config (spec §4.11 ticket TTL).
func SetTicketTTL(cfg config.WSConfig) {
	if cfg.TicketTTL > 0 {
		ticketTTL = cfg.TicketTTL
	}
}

type ticketClaims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// usedTickets tracks consumed jti values so a ticket can only ever upgrade
// one WebSocket connection (spec §4.11: "single-use"). Grounded on
// NonceVerifier's small in-memory expiring set idiom
// (internal/httpapi/nonce.go), generalized to a fixed TTL sweep.
var usedTickets = struct {
	mu   sync.Mutex
	seen map[string]time.Time
}{seen: make(map[string]time.Time)}

func init() {
	go func() {
		ticker := time.NewTicker(time.Minute)
		for range ticker.C {
			cutoff := time.Now().Add(-5 * time.Minute)
			usedTickets.mu.Lock()
			for jti, at := range usedTickets.seen {
				if at.Before(cutoff) {
					delete(usedTickets.seen, jti)
				}
			}
			usedTickets.mu.Unlock()
		}
	}()
}

// IssueTicket mints a signed, device-bound, single-use ticket for the
// WebSocket upgrade handshake (spec §6: POST /auth/ws-ticket).
func IssueTicket(deviceID string) (string, time.Duration, error) {
	now := time.Now()
	claims := ticketClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ticketTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ticketSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, ticketTTL, nil
}

// ConsumeTicket validates a ticket presented to GET /ws/connect?ticket=...,
// enforcing both expiry and single-use, and returns the bound device ID.
func ConsumeTicket(raw string) (string, error) {
	parsed, err := jwt.ParseWithClaims(raw, &ticketClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return ticketSecret, nil
	})
	if err != nil || !parsed.Valid {
		return "", coherr.ErrUnauthorized
	}
	claims, ok := parsed.Claims.(*ticketClaims)
	if !ok {
		return "", coherr.ErrUnauthorized
	}

	usedTickets.mu.Lock()
	defer usedTickets.mu.Unlock()
	if _, already := usedTickets.seen[claims.ID]; already {
		return "", coherr.ErrUnauthorized
	}
	usedTickets.seen[claims.ID] = time.Now()

	return claims.DeviceID, nil
}

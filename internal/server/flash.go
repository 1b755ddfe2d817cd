package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"csr-intake/internal/intake"
)

const (
	flashCookieName = "csr_flash"
	flashTTL        = 5 * time.Minute
)

// flashPayload is carried in the cookie between the redirect and the next
// page view.
type flashPayload struct {
	Messages []intake.Message `json:"m"`
	Exp      int64            `json:"exp"`
}

// flashCodec signs flash messages into a cookie so clients cannot inject
// their own text into the page.
type flashCodec struct {
	secret []byte
	secure bool
	now    func() time.Time
}

func newFlashCodec(secret string, secure bool) flashCodec {
	return flashCodec{secret: []byte(secret), secure: secure, now: time.Now}
}

func signPayload(secret []byte, msg string) string {
	m := hmac.New(sha256.New, secret)
	_, _ = m.Write([]byte(msg))
	return hex.EncodeToString(m.Sum(nil))
}

// encode returns "payload.signature".
func (f flashCodec) encode(msgs []intake.Message) (string, error) {
	b, err := json.Marshal(flashPayload{Messages: msgs, Exp: f.now().Add(flashTTL).Unix()})
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(b)
	return payload + "." + signPayload(f.secret, payload), nil
}

func (f flashCodec) decode(tok string) ([]intake.Message, error) {
	payload, sig, ok := strings.Cut(tok, ".")
	if !ok {
		return nil, errors.New("bad flash format")
	}

	want := signPayload(f.secret, payload)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return nil, errors.New("bad flash signature")
	}

	b, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	var p flashPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	if f.now().Unix() > p.Exp {
		return nil, errors.New("flash expired")
	}
	return p.Messages, nil
}

// set queues msgs for the next page view.
func (f flashCodec) set(w http.ResponseWriter, msgs []intake.Message) error {
	tok, err := f.encode(msgs)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(flashTTL.Seconds()),
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// pop returns the queued messages, if any, and clears the cookie. Messages
// with a bad signature or past their expiry are dropped.
func (f flashCodec) pop(w http.ResponseWriter, r *http.Request) ([]intake.Message, error) {
	c, err := r.Cookie(flashCookieName)
	if err != nil {
		return nil, nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return f.decode(c.Value)
}

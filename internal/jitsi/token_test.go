package jitsi

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-signing-secret"

func newTestService(t *testing.T) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testSecret, "ezmeets", "jitsi")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func parseToken(t *testing.T, raw string) jwt.MapClaims {
	t.Helper()
	token, err := jwt.Parse(raw, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(testSecret), nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		t.Fatalf("token not valid")
	}
	return claims
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	if _, err := NewTokenService("", "ezmeets", "jitsi"); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("err = %v, want %v", err, ErrNoSecret)
	}
}

func TestIssueClaims(t *testing.T) {
	svc := newTestService(t)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	raw, err := svc.Issue(Identity{
		ID:     "u-1",
		Name:   "Alice Smith",
		Email:  "alice@example.org",
		Avatar: "https://cdn.example.org/a.png",
	}, "TeamSync", true, 25*time.Minute, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims := parseToken(t, raw)
	if claims["room"] != "TeamSync" {
		t.Errorf("room = %v, want TeamSync", claims["room"])
	}
	if claims["moderator"] != true {
		t.Errorf("moderator = %v, want true", claims["moderator"])
	}
	if claims["iss"] != "ezmeets" || claims["aud"] != "jitsi" {
		t.Errorf("iss/aud = %v/%v", claims["iss"], claims["aud"])
	}
	if claims["sub"] != claims["iss"] {
		t.Errorf("sub = %v, want iss %v", claims["sub"], claims["iss"])
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		t.Fatalf("exp claim missing or wrong type: %v", claims["exp"])
	}
	if want := now.Add(25 * time.Minute).Unix(); int64(exp) != want {
		t.Errorf("exp = %d, want %d", int64(exp), want)
	}

	ctx, ok := claims["context"].(map[string]interface{})
	if !ok {
		t.Fatalf("context claim missing")
	}
	user, ok := ctx["user"].(map[string]interface{})
	if !ok {
		t.Fatalf("context.user claim missing")
	}
	if user["id"] != "u-1" || user["name"] != "Alice Smith" || user["email"] != "alice@example.org" {
		t.Errorf("context.user = %v", user)
	}
}

func TestIssueRejectsWrongSecret(t *testing.T) {
	svc := newTestService(t)
	raw, err := svc.Issue(Identity{ID: "u-1", Name: "Alice"}, "Room", false, time.Minute, time.Now())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = jwt.Parse(raw, func(tok *jwt.Token) (interface{}, error) {
		return []byte("other-secret"), nil
	})
	if err == nil {
		t.Fatal("token verified with the wrong secret")
	}
}

func TestJoinURL(t *testing.T) {
	got := JoinURL("https://meet.example.org/", "TeamSync", "TOKEN")
	want := "https://meet.example.org/TeamSync?jwt=TOKEN#config.startWithAudioMuted=true&config.startWithVideoMuted=true"
	if got != want {
		t.Errorf("JoinURL = %q, want %q", got, want)
	}
}

package dev

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/contract-factory/contract-factory/internal/auth"
)

const testAddr = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

func newDevRouter() *gin.Engine {
	r := gin.New()
	g := r.Group("/dev", DevModeMiddleware())
	g.POST("/token", IssueTokenHandler())
	g.GET("/status", StatusHandler())
	return r
}

func post(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/dev/token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDevModeMiddleware_Blocked(t *testing.T) {
	t.Setenv("DEV_MODE", "")
	t.Setenv("GIN_MODE", "release")

	w := post(newDevRouter(), `{"address":"`+testAddr+`"}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestIssueTokenHandler_Success(t *testing.T) {
	t.Setenv("DEV_MODE", "true")

	w := post(newDevRouter(), `{"address":"`+strings.ToLower(testAddr)+`","expires_in_secs":60}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token     string `json:"token"`
		Caller    string `json:"caller"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Caller != testAddr {
		t.Errorf("caller = %q, want checksummed %q", resp.Caller, testAddr)
	}
	if resp.ExpiresIn != 60 {
		t.Errorf("expires_in = %d, want 60", resp.ExpiresIn)
	}

	claims, err := auth.ValidateJWT(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	caller, err := claims.Caller()
	if err != nil || caller.Hex() != testAddr {
		t.Errorf("token caller = %v, %v", caller.Hex(), err)
	}
}

func TestIssueTokenHandler_TTLCapped(t *testing.T) {
	t.Setenv("DEV_MODE", "1")

	w := post(newDevRouter(), `{"address":"`+testAddr+`","expires_in_secs":99999999}`)
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := int(resp["expires_in"].(float64)); got != int(maxTokenTTL.Seconds()) {
		t.Errorf("expires_in = %d, want %d", got, int(maxTokenTTL.Seconds()))
	}
}

func TestIssueTokenHandler_BadRequests(t *testing.T) {
	t.Setenv("DEV_MODE", "true")

	tests := []struct {
		name string
		body string
	}{
		{"missing address", `{}`},
		{"not json", `address`},
		{"invalid address", `{"address":"0x123"}`},
		{"zero address", `{"address":"0x0000000000000000000000000000000000000000"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := post(newDevRouter(), tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestStatusHandler(t *testing.T) {
	t.Setenv("DEV_MODE", "true")

	req := httptest.NewRequest(http.MethodGet, "/dev/status", nil)
	w := httptest.NewRecorder()
	newDevRouter().ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"dev_mode":true`) {
		t.Errorf("status = %d body = %s", w.Code, w.Body.String())
	}
}

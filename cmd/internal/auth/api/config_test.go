package authapi

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("WORKSITE_AUTH_TRUST_PROXY", "")
	t.Setenv("WORKSITE_AUTH_MAX_BODY_BYTES", "")
	t.Setenv("WORKSITE_ADMIN_USER_TYPES", "")

	cfg := LoadConfigFromEnv()
	if cfg.TrustProxy {
		t.Fatalf("TrustProxy should default to false")
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("MaxBodyBytes=%d", cfg.MaxBodyBytes)
	}
	if !reflect.DeepEqual(cfg.AdminUserTypes, []string{"admin"}) {
		t.Fatalf("AdminUserTypes=%v", cfg.AdminUserTypes)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("WORKSITE_AUTH_TRUST_PROXY", "true")
	t.Setenv("WORKSITE_AUTH_MAX_BODY_BYTES", "2048")
	t.Setenv("WORKSITE_ADMIN_USER_TYPES", " admin, ,Gestor ")

	cfg := LoadConfigFromEnv()
	if !cfg.TrustProxy || cfg.MaxBodyBytes != 2048 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.AdminUserTypes, []string{"admin", "Gestor"}) {
		t.Fatalf("AdminUserTypes=%v", cfg.AdminUserTypes)
	}
}

func TestLoadConfigFromEnv_InvalidFallsBack(t *testing.T) {
	t.Setenv("WORKSITE_AUTH_TRUST_PROXY", "maybe")
	t.Setenv("WORKSITE_AUTH_MAX_BODY_BYTES", "-5")
	t.Setenv("WORKSITE_ADMIN_USER_TYPES", " , ")

	cfg := LoadConfigFromEnv()
	if cfg.TrustProxy || cfg.MaxBodyBytes != 1<<20 || len(cfg.AdminUserTypes) != 1 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadConfigFromEnv_Throttle(t *testing.T) {
	t.Setenv("WORKSITE_AUTH_LOGIN_IP_MAX", "")
	t.Setenv("WORKSITE_AUTH_LOGIN_EMAIL_MAX", "0")
	t.Setenv("WORKSITE_AUTH_LOGIN_WINDOW", "nope")

	cfg := LoadConfigFromEnv()
	if cfg.LoginIPMax != 20 || cfg.LoginEmailMax != 0 || cfg.LoginThrottleWindow != 5*time.Minute {
		t.Fatalf("unexpected throttle config %+v", cfg)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name  string
		trust bool
		xff   string
		want  string
	}{
		{name: "remote addr", trust: false, xff: "203.0.113.9", want: "192.0.2.1"},
		{name: "forwarded trusted", trust: true, xff: "bogus, 203.0.113.9, 10.0.0.1", want: "203.0.113.9"},
		{name: "forwarded garbage", trust: true, xff: "bogus", want: "192.0.2.1"},
	}
	for _, tc := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "192.0.2.1:1234"
		r.Header.Set("X-Forwarded-For", tc.xff)

		got := clientIP(r, tc.trust)
		if got == nil || got.String() != tc.want {
			t.Fatalf("%s: clientIP=%v, want %s", tc.name, got, tc.want)
		}
	}
}

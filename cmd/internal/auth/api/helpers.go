package authapi

import (
	"net"
	"net/http"
	"strings"

	"worksite/cmd/internal/auth/session"
)

func toUserResponse(issued session.Issued) userResponse {
	return userResponse{
		ID:           issued.User.ID,
		FirstName:    issued.User.FirstName,
		LastName:     issued.User.LastName,
		Email:        issued.User.Email,
		UserType:     issued.Claims.UserType,
		UserTypeName: issued.Claims.UserTypeName,
		Permissions:  issued.Claims.Permissions,
	}
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

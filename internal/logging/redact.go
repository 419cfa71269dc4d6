package logging

import (
	"fmt"
	"net"
	"net/netip"
	"regexp"
	"strings"
)

const redactedIP = "<redacted-ip>"

// Candidates are checked with netip before being replaced, so versions,
// ports and timestamps survive.
var (
	ipv4Candidate = regexp.MustCompile(`\d{1,3}(?:\.\d{1,3}){3}`)
	ipv6Candidate = regexp.MustCompile(`[0-9a-fA-F]{0,4}(?::[0-9a-fA-F]{0,4}){2,7}`)
)

// Redact replaces every IPv4 and IPv6 address in free text, such as an API
// server error message.
func Redact(s string) string {
	replace := func(candidate string) string {
		if _, err := netip.ParseAddr(candidate); err == nil {
			return redactedIP
		}
		return candidate
	}
	s = ipv4Candidate.ReplaceAllStringFunc(s, replace)
	return ipv6Candidate.ReplaceAllStringFunc(s, replace)
}

// SanitizeHost returns host, a URL, host:port or bare address, with an IP
// host replaced by a placeholder. Hostnames are kept.
//
//	"https://192.168.1.100:6443"        -> "https://<redacted-ip>:6443"
//	"[2001:db8::1]:6443"                -> "<redacted-ip>:6443"
//	"https://api.hive.example.com:6443" -> unchanged
func SanitizeHost(host string) string {
	if host == "" {
		return "<empty>"
	}

	if scheme, rest, ok := strings.Cut(host, "://"); ok {
		authority, tail := rest, ""
		if i := strings.IndexAny(rest, "/?#"); i >= 0 {
			authority, tail = rest[:i], rest[i:]
		}
		userinfo := ""
		if i := strings.LastIndex(authority, "@"); i >= 0 {
			userinfo, authority = authority[:i+1], authority[i+1:]
		}
		return scheme + "://" + userinfo + SanitizeHost(authority) + tail
	}

	if h, port, err := net.SplitHostPort(host); err == nil && isIP(h) {
		return redactedIP + ":" + port
	}
	if isIP(strings.Trim(host, "[]")) {
		return redactedIP
	}
	return Redact(host)
}

// SanitizeToken keeps only the length of a bearer token.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

func isIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

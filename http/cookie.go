package http

import (
	"errors"
	"strings"
)

var (
	ErrNoCookie      = errors.New("http: named cookie not present")
	ErrInvalidCookie = errors.New("http: invalid cookie format")
)

// Cookie is one name=value pair sent by the client in a Cookie header.
type Cookie struct {
	Name  string
	Value string
}

func (c Cookie) String() string {
	return c.Name + "=" + c.Value
}

// ParseCookies parses one Cookie header segment. Legacy clients may pack
// several pairs in a segment separated by commas; a comma is only taken as a
// separator when every piece it separates is a pair, otherwise it belongs to
// the value.
func ParseCookies(segment string) ([]Cookie, error) {
	var cookies []Cookie

	parts := strings.Split(segment, ",")
	for _, part := range parts {
		if !strings.Contains(part, "=") {
			parts = []string{segment}
			break
		}
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return cookies, ErrInvalidCookie
		}

		name := strings.TrimSpace(part[:eq])
		if !validCookieName(name) {
			return cookies, ErrInvalidCookie
		}

		value := strings.TrimSpace(part[eq+1:])
		if len(value) > 1 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}

		cookies = append(cookies, Cookie{Name: name, Value: value})
	}

	return cookies, nil
}

func parseCookieHeader(values [][]byte) []Cookie {
	var cookies []Cookie
	for _, value := range values {
		for _, segment := range strings.Split(string(value), ";") {
			segment = strings.TrimSpace(segment)
			if segment == "" {
				continue
			}

			parsed, _ := ParseCookies(segment) // Keep the valid pairs of a broken segment
			cookies = append(cookies, parsed...)
		}
	}
	return cookies
}

func validCookieName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !isValidCookieNameChar(r) {
			return false
		}
	}
	return true
}

// isValidCookieNameChar returns true if the character is valid in a cookie name
func isValidCookieNameChar(r rune) bool {
	// RFC 6265 - valid characters for cookie names
	return r > 0x20 && r < 0x7f && r != '"' && r != ',' && r != ';' && r != '\\' &&
		r != '=' && r != '(' && r != ')' && r != '<' && r != '>' && r != '@' &&
		r != '{' && r != '}' && r != '[' && r != ']' && r != '?' && r != ':' && r != '/'
}

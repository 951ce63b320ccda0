package service

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
)

const (
	maxOriginLength = 2048
	saltSize        = 16
	nonceSize       = 12
	gcmTagSize      = 16
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func validateDigest(field, v string) error {
	if !hexDigest.MatchString(v) {
		return fmt.Errorf("%w: %s must be 64 lowercase hex characters", ErrInvalidInput, field)
	}
	return nil
}

// validateOrigin accepts scheme://host[:port] with no path, query or fragment.
func validateOrigin(origin string) error {
	if origin == "" || len(origin) > maxOriginLength {
		return fmt.Errorf("%w: origin length", ErrInvalidInput)
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: origin %q is not an http(s) origin", ErrInvalidInput, origin)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return fmt.Errorf("%w: origin %q has extra components", ErrInvalidInput, origin)
	}
	return nil
}

func validateBase64(field, v string, minLen, exactLen int) error {
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return fmt.Errorf("%w: %s is not base64", ErrInvalidInput, field)
	}
	if exactLen > 0 && len(raw) != exactLen {
		return fmt.Errorf("%w: %s must decode to %d bytes", ErrInvalidInput, field, exactLen)
	}
	if len(raw) < minLen {
		return fmt.Errorf("%w: %s is too short", ErrInvalidInput, field)
	}
	return nil
}

// Package privacy scrubs connection strings and credentials out of messages before they are
// logged, reported to telemetry or returned by notification providers.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

var (
	// Any scheme: http(s), s3, sftp, ftp, mongodb, tcp, and the shoutrrr service schemes.
	urlPattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://\S+`)

	// Bearer and eBird tokens that appear outside URLs, e.g. in echoed request headers.
	bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/=-]+`)
	tokenPattern  = regexp.MustCompile(`(?i)(x-ebirdapitoken[:=]\s*)\S+`)
)

// ScrubMessage replaces URLs in message with anonymized forms and redacts bearer tokens.
func ScrubMessage(message string) string {
	message = urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
	message = bearerPattern.ReplaceAllString(message, "${1}[REDACTED]")
	return tokenPattern.ReplaceAllString(message, "${1}[REDACTED]")
}

// AnonymizeURL converts a URL into a stable hash that keeps the scheme and host category
// in its input, so identical endpoints still group together.
func AnonymizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	var normalizedParts []string
	if parsedURL.Scheme != "" {
		normalizedParts = append(normalizedParts, parsedURL.Scheme)
	}
	if host := parsedURL.Hostname(); host != "" {
		normalizedParts = append(normalizedParts, categorizeHost(host))
	}
	if parsedURL.Port() != "" {
		normalizedParts = append(normalizedParts, "port-"+parsedURL.Port())
	}
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		normalizedParts = append(normalizedParts, anonymizePath(parsedURL.Path))
	}

	hash := sha256.Sum256([]byte(strings.Join(normalizedParts, ":")))
	return fmt.Sprintf("%s://url-%x", schemeOrUnknown(parsedURL.Scheme), hash[:12])
}

// SanitizeURL strips credentials, query and fragment from rawURL, keeping scheme, host and path.
// Unparseable input is anonymized instead.
func SanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return AnonymizeURL(rawURL)
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func schemeOrUnknown(scheme string) string {
	if scheme == "" {
		return "unknown"
	}
	return strings.ToLower(scheme)
}

// categorizeHost reduces a hostname to loopback, private or public address class, or to its TLD.
func categorizeHost(host string) string {
	if strings.EqualFold(host, "localhost") {
		return "localhost"
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		switch {
		case addr.IsLoopback():
			return "localhost"
		case addr.IsPrivate(), addr.IsLinkLocalUnicast():
			return "private-ip"
		default:
			return "public-ip"
		}
	}

	if i := strings.LastIndexByte(host, '.'); i > 0 && i < len(host)-1 {
		return "domain-" + host[i+1:]
	}
	return "unknown-host"
}

// anonymizePath keeps the number of segments but hashes each one
func anonymizePath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "root"
	}

	var segments []string
	for segment := range strings.SplitSeq(path, "/") {
		switch {
		case segment == "":
		case isNumeric(segment):
			segments = append(segments, "numeric")
		default:
			sum := sha256.Sum256([]byte(segment))
			segments = append(segments, fmt.Sprintf("seg-%x", sum[:4]))
		}
	}
	return strings.Join(segments, "/")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// scrubbedError reports a scrubbed message while keeping the original error in the chain.
type scrubbedError struct {
	cause error
	msg   string
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.cause }

// WrapError returns err with ScrubMessage applied to its text, or nil for a nil err.
// errors.Is and errors.As still see the original.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &scrubbedError{cause: err, msg: ScrubMessage(err.Error())}
}

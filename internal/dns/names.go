package dns

import (
	"fmt"
	"strings"

	"github.com/go-acme/lego/v4/challenge/dns01"
	mdns "github.com/miekg/dns"
)

// ToFQDN converts a relative DNS name to a Fully Qualified Domain Name (FQDN)
//
// Rules:
// - zone = "example.com"
// - name = "@"    -> fqdn = "example.com"
// - name = "home" -> fqdn = "home.example.com"
// - name = "a.b"  -> fqdn = "a.b.example.com"
//
// If name is already a FQDN (contains the zone), it will be returned as-is.
// The result never carries a trailing dot.
func ToFQDN(zone string, name string) string {
	zone = CanonicalName(zone)
	name = CanonicalName(name)

	if name == "" || name == "@" {
		return zone
	}

	if strings.HasSuffix(name, "."+zone) || name == zone {
		return name
	}

	return name + "." + zone
}

// NormalizeRelativeName converts any name format to a relative name (non-FQDN)
//
// Rules:
// - zone = "example.com"
// - name = "example.com"      -> "@"
// - name = "home.example.com" -> "home"
// - name = "a.b.example.com"  -> "a.b"
// - name = "home.example.com." -> "home" (trailing dot removed)
func NormalizeRelativeName(name, zone string) string {
	zone = CanonicalName(zone)
	name = CanonicalName(name)

	if name == "" || name == zone {
		return "@"
	}

	if strings.HasSuffix(name, "."+zone) {
		relName := strings.TrimSuffix(name, "."+zone)
		if relName == "" {
			return "@"
		}
		return relName
	}

	return name
}

// CanonicalName lowercases a name and strips surrounding space and the trailing dot
func CanonicalName(name string) string {
	return dns01.UnFqdn(strings.ToLower(strings.TrimSpace(name)))
}

// ValidateHostname checks that name is a syntactically valid domain name
// with at least two labels.
func ValidateHostname(name string) error {
	name = CanonicalName(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	labels, ok := mdns.IsDomainName(dns01.ToFqdn(name))
	if !ok {
		return fmt.Errorf("%w: %q is not a domain name", ErrInvalidName, name)
	}
	for _, label := range mdns.SplitDomainName(name) {
		if label == "" {
			return fmt.Errorf("%w: %q has an empty label", ErrInvalidName, name)
		}
	}
	if labels < 2 {
		return fmt.Errorf("%w: %q has no parent zone", ErrInvalidName, name)
	}
	return nil
}

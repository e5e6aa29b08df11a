package tor

import (
	"encoding/base32"
	"errors"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Onion address constants.
const (
	// OnionSuffix is the common suffix for all onion hosts.
	OnionSuffix = ".onion"

	// onionV3Version is the version byte embedded in v3 addresses.
	onionV3Version = 0x03

	// onionV3DecodedLength is pubkey (32) + checksum (2) + version (1).
	onionV3DecodedLength = 35
)

// Onion host errors returned by CheckHost.
var (
	// ErrInvalidOnionAddress is returned when a v3-shaped host has a bad
	// checksum or version, or when a host is not onion-shaped at all.
	ErrInvalidOnionAddress = errors.New("invalid onion address")

	// ErrV2AddressDeprecated is returned for 16-character v2 hosts, which
	// stopped working on the Tor network in October 2021.
	ErrV2AddressDeprecated = errors.New("v2 onion addresses are deprecated and no longer functional")
)

// onionV3Pattern matches the service label of a v3 host: 56 base32 characters.
var onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}$`)

// onionV2Pattern matches the service label of a v2 host: 16 base32 characters.
var onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}$`)

// checksumPrefix is the prefix used in the v3 checksum calculation.
var checksumPrefix = []byte(".onion checksum")

// IsOnionHost reports whether host (without port) is in the .onion domain.
func IsOnionHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), OnionSuffix)
}

// serviceLabel returns the label directly left of ".onion", so that
// subdomains such as www.<address>.onion are checked against the address.
func serviceLabel(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), OnionSuffix)
	if i := strings.LastIndexByte(host, '.'); i >= 0 {
		host = host[i+1:]
	}
	return host
}

// CheckHost validates an onion host before any network I/O is spent on it.
// It returns nil for a well-formed v3 host, ErrV2AddressDeprecated for a v2
// host and ErrInvalidOnionAddress otherwise.
func CheckHost(host string) error {
	label := serviceLabel(host)
	switch {
	case onionV2Pattern.MatchString(label):
		return ErrV2AddressDeprecated
	case IsValidV3Address(label + OnionSuffix):
		return nil
	default:
		return ErrInvalidOnionAddress
	}
}

// IsValidV3Address checks format, version byte and checksum of a v3 onion
// address such as "<56 chars>.onion".
func IsValidV3Address(address string) bool {
	label := strings.TrimSuffix(strings.ToLower(address), OnionSuffix)
	if !onionV3Pattern.MatchString(label) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(label))
	if err != nil || len(decoded) != onionV3DecodedLength {
		return false
	}

	pubkey := decoded[:32]
	checksum := decoded[32:34]
	version := decoded[34]
	if version != onionV3Version {
		return false
	}

	expected := computeV3Checksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

// computeV3Checksum returns the first 2 bytes of
// SHA3-256(".onion checksum" || pubkey || version).
func computeV3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)

	hash := sha3.Sum256(data)
	return hash[:2]
}

// ComputeV3Address derives the v3 onion address of an ed25519 public key.
func ComputeV3Address(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", ErrInvalidOnionAddress
	}

	data := make([]byte, onionV3DecodedLength)
	copy(data[:32], pubkey)
	copy(data[32:34], computeV3Checksum(pubkey, onionV3Version))
	data[34] = onionV3Version

	return strings.ToLower(base32.StdEncoding.EncodeToString(data)) + OnionSuffix, nil
}

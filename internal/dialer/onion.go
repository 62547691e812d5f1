package dialer

import (
	"encoding/base32"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// OnionSuffix is the pseudo top-level domain of Tor onion services.
const OnionSuffix = ".onion"

// onionV3Version is the version byte at the end of a decoded v3 address.
const onionV3Version = 0x03

var (
	// 56 base32 characters: 32-byte ed25519 key, 2-byte checksum, version.
	onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

	// v2 addresses stopped working in October 2021.
	onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)
)

// IsOnionHost reports whether host is under the .onion domain. Subdomains
// of an onion address count as well.
func IsOnionHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSuffix(host, ".")), OnionSuffix)
}

// ValidateOnionHost checks the onion address in host, ignoring any
// subdomain. A v3 address must carry a correct checksum.
func ValidateOnionHost(host string) error {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return fmt.Errorf("%w: %q", ErrInvalidOnionAddress, host)
	}
	address := labels[len(labels)-2] + OnionSuffix

	switch {
	case onionV2Pattern.MatchString(address):
		return fmt.Errorf("%w: %q", ErrOnionV2Address, address)
	case !onionV3Pattern.MatchString(address):
		return fmt.Errorf("%w: %q", ErrInvalidOnionAddress, address)
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, OnionSuffix)))
	if err != nil || len(decoded) != 35 {
		return fmt.Errorf("%w: %q", ErrInvalidOnionAddress, address)
	}
	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != onionV3Version {
		return fmt.Errorf("%w: %q has version %d", ErrInvalidOnionAddress, address, version)
	}
	want := onionChecksum(pubkey, version)
	if checksum[0] != want[0] || checksum[1] != want[1] {
		return fmt.Errorf("%w: %q has a bad checksum", ErrInvalidOnionAddress, address)
	}
	return nil
}

// onionChecksum returns the first two bytes of
// SHA3-256(".onion checksum" || pubkey || version).
func onionChecksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(".onion checksum")+len(pubkey)+1)
	data = append(data, ".onion checksum"...)
	data = append(data, pubkey...)
	data = append(data, version)
	sum := sha3.Sum256(data)
	return sum[:2]
}

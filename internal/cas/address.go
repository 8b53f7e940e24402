package cas

import (
	"strings"

	"github.com/caskstore/caskstore/pkg/errors"
)

// keyToAddress converts a store-relative key into a fully-qualified address
// rooted at the store location. The inverse of addressToKey: both read and
// write paths go through this one pair, so an address handed out by Write is
// always resolvable by Read.
func keyToAddress(location, key string) string {
	return location + "/" + key
}

// addressToKey resolves a fully-qualified address back to the store-relative
// key. Addresses rooted at a different location are a resolution error, not
// a lookup miss.
func addressToKey(location, address string) (string, error) {
	root := location + "/"
	if !strings.HasPrefix(address, root) {
		return "", errors.Newf(errors.ErrCodeAddressResolution,
			"address %q is not rooted at %q", address, location)
	}
	key := strings.TrimPrefix(address, root)
	if key == "" {
		return "", errors.Newf(errors.ErrCodeAddressResolution,
			"address %q names the store root, not an object", address)
	}
	return key, nil
}

// contentKey derives the physical key for a payload hash under path.
func contentKey(path, hash string) string {
	if path == "" {
		return hash + ".json"
	}
	return strings.TrimSuffix(path, "/") + "/" + hash + ".json"
}

package hdwallet

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidPathComponent is returned when a path component is not a
	// decimal index with an optional hardened marker
	ErrInvalidPathComponent = errors.New("invalid derivation path component")

	// ErrInvalidIndex is returned when a numeric path component is >= 2^31;
	// only the hardened marker may push an index past that boundary
	ErrInvalidIndex = errors.New("derivation index out of range")
)

// ParsePath parses a "/"-delimited BIP-32 derivation path into child indices.
// An optional leading "m/" is accepted. Each component is a plain decimal
// index, optionally suffixed with ' for hardened derivation (which adds 2^31).
func ParsePath(path string) ([]uint32, error) {
	trimmed := strings.TrimPrefix(path, "m/")
	if trimmed == "" || trimmed == "m" {
		return nil, errors.Wrapf(ErrInvalidPathComponent, "empty path %q", path)
	}

	components := strings.Split(trimmed, "/")
	indices := make([]uint32, 0, len(components))

	for _, component := range components {
		index, err := parseComponent(component)
		if err != nil {
			return nil, err
		}

		indices = append(indices, index)
	}

	return indices, nil
}

func parseComponent(component string) (uint32, error) {
	hardened := strings.HasSuffix(component, "'")
	numeric := strings.TrimSuffix(component, "'")

	if numeric == "" {
		return 0, errors.Wrapf(ErrInvalidPathComponent, "component %q", component)
	}

	for _, r := range numeric {
		if r < '0' || r > '9' {
			return 0, errors.Wrapf(ErrInvalidPathComponent, "component %q", component)
		}
	}

	value, err := strconv.ParseUint(numeric, 10, 64)
	if err != nil {
		// all-digit component that still fails to parse can only be out of range
		return 0, errors.Wrapf(ErrInvalidIndex, "component %q", component)
	}

	if value >= uint64(FirstHardenedIndex) {
		return 0, errors.Wrapf(ErrInvalidIndex, "component %q", component)
	}

	index := uint32(value)
	if hardened {
		index += FirstHardenedIndex
	}

	return index, nil
}

package persistence

import "errors"

// Named addresses
const (
	AddressKeyOwner    = "owner"
	AddressKeyTreasury = "treasury"
)

// Backend names accepted by the server configuration
const (
	TypeMemory = "memory"
	TypeBadger = "badger"
	TypeRedis  = "redis"
)

var (
	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("persistence layer is closed")
	// ErrRootNotFound is returned when mutating a root id that was never assigned
	ErrRootNotFound = errors.New("distribution root not found")
)

// ClaimedWordBits is the width of one claimed bitmap word
const ClaimedWordBits = 64

// ClaimedBitmapIndex returns the bitmap word holding position and the bit mask within that word
func ClaimedBitmapIndex(position uint64) (word uint64, mask uint64) {
	return position / ClaimedWordBits, uint64(1) << (position % ClaimedWordBits)
}

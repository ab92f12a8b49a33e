package status

import (
	"crypto/md5"

	"github.com/google/uuid"
)

// OfflinePlayerID returns the id a server in offline mode assigns to name: a
// version 3 UUID over "OfflinePlayer:" + name.
func OfflinePlayerID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = sum[6]&0x0f | 0x30
	sum[8] = sum[8]&0x3f | 0x80
	return uuid.UUID(sum)
}

// NewSample builds the player sample list for names, in order.
func NewSample(names []string) []PlayerSample {
	sample := make([]PlayerSample, 0, len(names))
	for _, name := range names {
		sample = append(sample, PlayerSample{Name: name, ID: OfflinePlayerID(name).String()})
	}

	return sample
}

package models

const (
	snapshotKeyPrefix  = "stock:"
	priceChannelPrefix = "prices."
)

// SnapshotKey is the Redis key holding the latest update for a symbol.
func SnapshotKey(symbol string) string { return snapshotKeyPrefix + symbol }

// PriceChannel is the Redis pub/sub channel carrying every update for a symbol.
func PriceChannel(symbol string) string { return priceChannelPrefix + symbol }

// SymbolFromChannel inverts PriceChannel. ok is false for foreign channels.
func SymbolFromChannel(channel string) (symbol string, ok bool) {
	if len(channel) <= len(priceChannelPrefix) || channel[:len(priceChannelPrefix)] != priceChannelPrefix {
		return "", false
	}
	return channel[len(priceChannelPrefix):], true
}

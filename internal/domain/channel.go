package domain

// Channel names a logical subscription topic of the live protocol.
type Channel string

// ChannelListings delivers every accepted listing batch.
const ChannelListings Channel = "listings"

func (c Channel) Valid() bool {
	return c == ChannelListings
}

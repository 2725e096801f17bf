package models

import "fmt"

// Channel is the distribution channel a product is published to.
type Channel string

const (
	ChannelOnline Channel = "online"
	ChannelLocal  Channel = "local"
)

// Channels lists every channel in upload order.
var Channels = []Channel{ChannelOnline, ChannelLocal}

func (c Channel) Valid() bool {
	return c == ChannelOnline || c == ChannelLocal
}

func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}

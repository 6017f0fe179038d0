package ws

import "partyboard/internal/domain"

// Frame discriminators of the live protocol.
const (
	typeSubscribe    = "subscribe"
	typeUnsubscribe  = "unsubscribe"
	typeSubscribed   = "subscribed"
	typeUnsubscribed = "unsubscribed"
	typeListings     = "listings"
	typeErr          = "err"
)

// inboundMessage is a control frame sent by the viewer.
type inboundMessage struct {
	Type    string         `json:"type"`
	Channel domain.Channel `json:"channel"`
}

// outboundMessage is a single frame queued for the write loop. All frames of
// a connection funnel through one ordered queue so interleaving from several
// forwarding tasks never splits a frame.
type outboundMessage struct {
	Type     string           `json:"type"`
	Channel  domain.Channel   `json:"channel,omitempty"`
	Listings []domain.Listing `json:"listings,omitempty"`
	Message  string           `json:"message,omitempty"`
}

func subscribedMsg(channel domain.Channel) outboundMessage {
	return outboundMessage{Type: typeSubscribed, Channel: channel}
}

func unsubscribedMsg(channel domain.Channel) outboundMessage {
	return outboundMessage{Type: typeUnsubscribed, Channel: channel}
}

func listingsMsg(listings []domain.Listing) outboundMessage {
	return outboundMessage{Type: typeListings, Listings: listings}
}

func errMsg(message string) outboundMessage {
	return outboundMessage{Type: typeErr, Message: message}
}

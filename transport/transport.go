// Package transport provides the narrow client interface to the chat server.
//
// The wire protocol is owned by the server; this package only frames and
// unframes JSON envelopes over a websocket. Everything the rest of the bot
// knows about the server goes through [Conn].
package transport

import "context"

// User identifies a connected user. Identities are session-scoped; the
// server may reuse an ID after the user disconnects.
type User struct {
	// ID is the server-assigned connection ID.
	ID string `json:"id"`
	// Username is the stable account name. Permission checks key on this.
	Username string `json:"username"`
	// Nickname is the display name.
	Nickname string `json:"nickname"`
}

// Message is a text message received from the server.
type Message struct {
	// ID is the unique ID of the message.
	ID string `json:"id"`
	// From is the sender.
	From User `json:"from"`
	// Channel is the channel path the message was posted to.
	// It is empty for private messages.
	Channel string `json:"channel,omitzero"`
	// Text is the message text.
	Text string `json:"text"`
	// Private indicates the message was sent directly to the bot.
	Private bool `json:"private,omitzero"`
}

// Event is a server event delivered by a Conn. The concrete type is one of
// [MessageEvent], [JoinEvent], or [LeaveEvent].
type Event interface {
	event()
}

// MessageEvent is a text message, private or in-channel.
type MessageEvent struct {
	Message
}

// JoinEvent reports a user entering a channel.
type JoinEvent struct {
	User    User
	Channel string
}

// LeaveEvent reports a user leaving a channel or the server.
type LeaveEvent struct {
	User    User
	Channel string
}

func (MessageEvent) event() {}
func (JoinEvent) event()    {}
func (LeaveEvent) event()   {}

// AuthError is a fatal authentication failure. A connection attempt failing
// with AuthError must not be retried.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

// Conn is a live session with the chat server.
//
// Send operations report transport-level failures to the caller without
// tearing down the session; only closure of the events channel indicates
// the connection is gone.
type Conn interface {
	// Events returns the channel on which server events are delivered.
	// It is closed when the connection is lost or Close is called.
	Events() <-chan Event
	// Err reports the error that closed the events channel, if any.
	// It is valid only after Events is closed.
	Err() error

	SendPrivate(ctx context.Context, to, text string) error
	SendChannel(ctx context.Context, channel, text string) error
	Join(ctx context.Context, path string) error
	SetNick(ctx context.Context, nick string) error
	SetStatus(ctx context.Context, status string) error
	Kick(ctx context.Context, user, channel string) error
	Move(ctx context.Context, user, path string) error
	Ban(ctx context.Context, username string) error
	Unban(ctx context.Context, username string) error

	Close() error
}

// Package push contains interfaces to be implemented by push notification
// plugins.
package push

import (
	"encoding/json"
	"errors"
	"time"

	t "github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// Push actions.
const (
	// ActMsg is a new message.
	ActMsg = "msg"
	// ActRead is messages read: clear unread count.
	ActRead = "read"
	// ActLock is a conversation lock state change.
	ActLock = "lock"
)

// MaxPayloadLength is the maximum length of the push preview in characters.
const MaxPayloadLength = 128

// Recipient is a user targeted by the push.
type Recipient struct {
	// Count of user's connections that were live when the packet was
	// dispatched from the server.
	Delivered int `json:"delivered"`
	// Unread count to include in the push.
	Unread int `json:"unread"`
}

// Receipt is the push payload with a list of recipients.
type Receipt struct {
	// List of individual recipients, including those who did not receive the
	// message over an open connection.
	To map[t.Uid]Recipient `json:"to"`
	// Actual content to be delivered to the client.
	Payload Payload `json:"payload"`
}

// Payload is content of the push.
type Payload struct {
	// Action type of the push: new message (msg), messages read (read), etc.
	What string `json:"what"`
	// If this is a silent push: perform action but do not show a notification
	// to the user.
	Silent bool `json:"silent"`
	// Conversation which was affected by the action.
	Conversation string `json:"conv"`
	// Timestamp of the action.
	Timestamp time.Time `json:"ts"`

	// Message sender 'usrXXX'.
	From string `json:"from"`
	// ID of the message.
	MsgId string `json:"msg,omitempty"`
	// Short preview of the message content: truncated text or a media
	// placeholder.
	Preview string `json:"preview,omitempty"`
}

// Handler is an interface which must be implemented by push handlers.
type Handler interface {
	// Init initializes the handler.
	Init(jsonconf json.RawMessage) (bool, error)

	// IsReady checks if the handler is initialized.
	IsReady() bool

	// Push returns a channel that the server will use to send messages to.
	// The message will be dropped if the channel blocks.
	Push() chan<- *Receipt

	// Stop terminates the handler's worker and stops sending pushes.
	Stop()
}

type configType struct {
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config"`
}

var handlers map[string]Handler

// Register a push handler.
func Register(name string, hnd Handler) {
	if handlers == nil {
		handlers = make(map[string]Handler)
	}

	if hnd == nil {
		panic("Register: push handler is nil")
	}
	if _, dup := handlers[name]; dup {
		panic("Register: called twice for handler " + name)
	}
	handlers[name] = hnd
}

// Init initializes registered handlers.
func Init(jsconfig json.RawMessage) ([]string, error) {
	var config []configType

	if err := json.Unmarshal(jsconfig, &config); err != nil {
		return nil, errors.New("failed to parse config: " + err.Error())
	}

	var enabled []string
	for _, cc := range config {
		if hnd := handlers[cc.Name]; hnd != nil {
			if ok, err := hnd.Init(cc.Config); err != nil {
				return nil, err
			} else if ok {
				enabled = append(enabled, cc.Name)
			}
		}
	}

	return enabled, nil
}

// Push a single message to devices.
func Push(msg *Receipt) {
	if handlers == nil {
		return
	}

	for _, hnd := range handlers {
		if !hnd.IsReady() {
			continue
		}

		// Push without delay or skip.
		select {
		case hnd.Push() <- msg:
		default:
		}
	}
}

// Stop all pushes.
func Stop() {
	if handlers == nil {
		return
	}

	for _, hnd := range handlers {
		if hnd.IsReady() {
			// Will potentially block.
			hnd.Stop()
		}
	}
}

package session

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	// sender's state vector, transmitted on channel open
	MessageSyncStep1 MessageType = "sync-step-1"
	// diff computed against the step-1 state vector
	MessageSyncStep2 MessageType = "sync-step-2"
	// replicated document delta, relayed by the host
	MessageUpdate MessageType = "update"
	// {id, name, color} on join, relayed by the host
	MessageAnnounceUser MessageType = "announce-user"
	// best-effort playback overlay, relayed by the host
	MessagePlayback MessageType = "playback"
)

type PlaybackAction string

const (
	PlaybackPlay  PlaybackAction = "play"
	PlaybackPause PlaybackAction = "pause"
	PlaybackSeek  PlaybackAction = "seek"
)

// User is one presence map entry.
type User struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type Playback struct {
	Action PlaybackAction `json:"action"`
	Frame  int            `json:"frame,omitempty"`
}

// Envelope is the single wire message. Binary payloads travel as plain
// arrays of byte values, which keeps the envelope portable across channel
// serializations that have no native binary type.
type Envelope struct {
	Type        MessageType `json:"type"`
	StateVector []int       `json:"stateVector,omitempty"`
	Diff        []int       `json:"diff,omitempty"`
	User        *User       `json:"user,omitempty"`
	Playback    *Playback   `json:"playback,omitempty"`
}

func EncodeMessage(envelope *Envelope) ([]byte, error) {
	return json.Marshal(envelope)
}

// DecodeMessage parses an envelope. Non-object or unknown-type payloads
// are an error; the caller logs and drops them.
func DecodeMessage(message []byte) (*Envelope, error) {
	envelope := &Envelope{}
	if err := json.Unmarshal(message, envelope); err != nil {
		return nil, err
	}
	switch envelope.Type {
	case MessageSyncStep1, MessageSyncStep2, MessageUpdate, MessageAnnounceUser, MessagePlayback:
		return envelope, nil
	default:
		return nil, fmt.Errorf("unknown message type: %q", envelope.Type)
	}
}

func bytesToInts(b []byte) []int {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return ints
}

func intsToBytes(ints []int) []byte {
	b := make([]byte, len(ints))
	for i, v := range ints {
		b[i] = byte(v)
	}
	return b
}

func newSyncStep1(stateVector []byte) *Envelope {
	return &Envelope{
		Type:        MessageSyncStep1,
		StateVector: bytesToInts(stateVector),
	}
}

func newSyncStep2(diff []byte) *Envelope {
	return &Envelope{
		Type: MessageSyncStep2,
		Diff: bytesToInts(diff),
	}
}

func newUpdate(diff []byte) *Envelope {
	return &Envelope{
		Type: MessageUpdate,
		Diff: bytesToInts(diff),
	}
}

func newAnnounceUser(user User) *Envelope {
	return &Envelope{
		Type: MessageAnnounceUser,
		User: &user,
	}
}

func newPlayback(action PlaybackAction, frame int) *Envelope {
	return &Envelope{
		Type: MessagePlayback,
		Playback: &Playback{
			Action: action,
			Frame:  frame,
		},
	}
}

package session

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/framepad/framepad/event"
	"github.com/framepad/framepad/replica"
)

type State string

const (
	StateIdle       State = "idle"
	StateHosting    State = "hosting"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
)

type StateFunction func(state State)

type UserFunction func(user User)

type PlaybackFunction func(action PlaybackAction, frame int)

// Session keeps this client's replicated document converged with every
// peer it has a channel to.
//
// The topology is a star: every guest holds exactly one channel, to the
// host. The host relays update, announce-user and playback messages
// verbatim to every peer except the sender, which makes the star behave
// like a full mesh. Guests never relay.
type Session struct {
	doc       *replica.Doc
	localUser User

	stateLock sync.Mutex
	state     State
	channels  []Channel
	users     map[string]User

	stateCallbacks    event.CallbackList[StateFunction]
	userCallbacks     event.CallbackList[UserFunction]
	playbackCallbacks event.CallbackList[PlaybackFunction]

	unsubUpdate func()
}

func NewSession(doc *replica.Doc, localUser User) *Session {
	session := &Session{
		doc:       doc,
		localUser: localUser,
		state:     StateIdle,
		users:     map[string]User{},
	}
	session.unsubUpdate = doc.OnUpdate(session.docUpdated)
	return session
}

func (self *Session) LocalUser() User {
	return self.localUser
}

func (self *Session) State() State {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.state
}

// Users returns the known session members, local user included, sorted by id.
func (self *Session) Users() []User {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	users := maps.Values(self.users)
	slices.SortFunc(users, func(a User, b User) int {
		if a.Id < b.Id {
			return -1
		} else if b.Id < a.Id {
			return 1
		}
		return 0
	})
	return users
}

func (self *Session) OnStateChanged(callback StateFunction) func() {
	return self.stateCallbacks.Add(callback)
}

func (self *Session) OnUserAnnounced(callback UserFunction) func() {
	return self.userCallbacks.Add(callback)
}

func (self *Session) OnPlayback(callback PlaybackFunction) func() {
	return self.playbackCallbacks.Add(callback)
}

// Host starts accepting guest channels. Channels are attached with
// AddChannel as the transport hands them over.
func (self *Session) Host() error {
	self.stateLock.Lock()
	if self.state != StateIdle {
		self.stateLock.Unlock()
		return fmt.Errorf("cannot host from state %s", self.state)
	}
	self.state = StateHosting
	self.users[self.localUser.Id] = self.localUser
	self.stateLock.Unlock()

	self.publishPresence()
	self.notifyState(StateHosting)
	return nil
}

// Connect joins a hosted session over the given channel to the host.
func (self *Session) Connect(channel Channel) error {
	self.stateLock.Lock()
	if self.state != StateIdle {
		self.stateLock.Unlock()
		return fmt.Errorf("cannot connect from state %s", self.state)
	}
	self.state = StateConnecting
	self.users[self.localUser.Id] = self.localUser
	self.stateLock.Unlock()

	self.publishPresence()
	self.notifyState(StateConnecting)
	self.AddChannel(channel)
	return nil
}

// AddChannel attaches an open peer channel and starts the handshake:
// send our state vector, announce ourselves. The peer answers with the
// diff we are missing, and independently initiates its own step 1, so
// both sides converge after one round trip per direction.
func (self *Session) AddChannel(channel Channel) {
	self.stateLock.Lock()
	self.channels = append(slices.Clone(self.channels), channel)
	self.stateLock.Unlock()

	channel.SetErrorCallback(func(err error) {
		self.channelFailed(channel, err)
	})
	channel.SetReceiveCallback(func(message []byte) {
		self.handleMessage(channel, message)
	})

	self.send(channel, newSyncStep1(self.doc.StateVector()))
	self.send(channel, newAnnounceUser(self.localUser))
}

// Disconnect closes all channels and clears peer state synchronously.
// Message sends are fire-and-forget, so nothing needs draining.
func (self *Session) Disconnect() {
	self.stateLock.Lock()
	channels := self.channels
	self.channels = nil
	self.users = map[string]User{}
	wasIdle := self.state == StateIdle
	self.state = StateIdle
	self.stateLock.Unlock()

	for _, channel := range channels {
		channel.Close()
	}
	if !wasIdle {
		self.notifyState(StateIdle)
	}
}

func (self *Session) Close() {
	self.Disconnect()
	if self.unsubUpdate != nil {
		self.unsubUpdate()
	}
}

// publishPresence writes the local user into the replicated presence map,
// so peers that are not directly connected still learn about it.
func (self *Session) publishPresence() {
	userJson, err := json.Marshal(self.localUser)
	if err != nil {
		return
	}
	self.doc.Set(replica.MapPresence, self.localUser.Id, userJson)
}

// docUpdated broadcasts locally authored document deltas. Externally
// applied deltas are already known to peers; rebroadcasting them would
// loop traffic through the star forever.
func (self *Session) docUpdated(diff []byte, origin event.Origin) {
	if origin != event.OriginLocal {
		return
	}
	message, err := EncodeMessage(newUpdate(diff))
	if err != nil {
		return
	}
	for _, channel := range self.channelsSnapshot() {
		if err := channel.Send(message); err != nil {
			glog.V(1).Infof("[sn]update-> error = %s\n", err)
		}
	}
}

// SendPlayback broadcasts a best-effort playback action. Not part of the
// replicated document: late joiners do not need historical play/pause.
func (self *Session) SendPlayback(action PlaybackAction, frame int) {
	message, err := EncodeMessage(newPlayback(action, frame))
	if err != nil {
		return
	}
	for _, channel := range self.channelsSnapshot() {
		if err := channel.Send(message); err != nil {
			glog.V(1).Infof("[sn]playback-> error = %s\n", err)
		}
	}
}

func (self *Session) channelsSnapshot() []Channel {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return slices.Clone(self.channels)
}

func (self *Session) send(channel Channel, envelope *Envelope) {
	message, err := EncodeMessage(envelope)
	if err != nil {
		return
	}
	if err := channel.Send(message); err != nil {
		glog.V(1).Infof("[sn]%s-> error = %s\n", envelope.Type, err)
	}
}

func (self *Session) handleMessage(channel Channel, message []byte) {
	envelope, err := DecodeMessage(message)
	if err != nil {
		// a malformed payload is dropped, not fatal
		glog.V(1).Infof("[sn]<- drop = %s\n", err)
		return
	}

	switch envelope.Type {
	case MessageSyncStep1:
		diff, err := self.doc.EncodeDiff(intsToBytes(envelope.StateVector))
		if err != nil {
			glog.V(1).Infof("[sn]step1<- bad state vector = %s\n", err)
			return
		}
		self.send(channel, newSyncStep2(diff))
	case MessageSyncStep2:
		before := self.doc.Version()
		if err := self.doc.ApplyDiff(intsToBytes(envelope.Diff), event.OriginRemote); err != nil {
			glog.V(1).Infof("[sn]step2<- bad diff = %s\n", err)
			return
		}
		// content a newcomer brought with it is forwarded to the other
		// peers as a normal update, otherwise only the host would see it
		if !maps.Equal(before, self.doc.Version()) {
			if relayMessage, err := EncodeMessage(newUpdate(intsToBytes(envelope.Diff))); err == nil {
				self.relay(channel, relayMessage)
			}
		}
		self.stateLock.Lock()
		connected := self.state == StateConnecting
		if connected {
			self.state = StateConnected
		}
		self.stateLock.Unlock()
		if connected {
			self.notifyState(StateConnected)
		}
	case MessageUpdate:
		self.relay(channel, message)
		if err := self.doc.ApplyDiff(intsToBytes(envelope.Diff), event.OriginRemote); err != nil {
			glog.V(1).Infof("[sn]update<- bad diff = %s\n", err)
		}
	case MessageAnnounceUser:
		if envelope.User == nil {
			return
		}
		self.relay(channel, message)
		self.announced(channel, *envelope.User)
	case MessagePlayback:
		if envelope.Playback == nil {
			return
		}
		self.relay(channel, message)
		for _, callback := range self.playbackCallbacks.Get() {
			callback(envelope.Playback.Action, envelope.Playback.Frame)
		}
	}
}

// relay forwards a message verbatim to every peer except the sender.
// Only the host relays; guests hold a single channel anyway.
func (self *Session) relay(from Channel, message []byte) {
	self.stateLock.Lock()
	if self.state != StateHosting {
		self.stateLock.Unlock()
		return
	}
	targets := []Channel{}
	for _, channel := range self.channels {
		if channel != from {
			targets = append(targets, channel)
		}
	}
	self.stateLock.Unlock()

	for _, channel := range targets {
		if err := channel.Send(message); err != nil {
			glog.V(1).Infof("[sn]relay-> error = %s\n", err)
		}
	}
}

func (self *Session) announced(channel Channel, user User) {
	self.stateLock.Lock()
	_, known := self.users[user.Id]
	self.users[user.Id] = user
	hosting := self.state == StateHosting
	var knownUsers []User
	if hosting && !known {
		knownUsers = maps.Values(self.users)
	}
	self.stateLock.Unlock()

	// a newcomer only has a channel to the host, so the host replays the
	// member list it already knows
	for _, knownUser := range knownUsers {
		if knownUser.Id == user.Id {
			continue
		}
		self.send(channel, newAnnounceUser(knownUser))
	}

	if !known {
		glog.V(1).Infof("[sn]user %s (%s)\n", user.Id, user.Name)
		for _, callback := range self.userCallbacks.Get() {
			callback(user)
		}
	}
}

// channelFailed tears down one peer channel. Other channels are unaffected.
// For a guest the host channel is the session: losing it ends the session.
func (self *Session) channelFailed(channel Channel, err error) {
	glog.Infof("[sn]channel error = %s\n", err)

	self.stateLock.Lock()
	i := slices.Index(self.channels, channel)
	if i < 0 {
		self.stateLock.Unlock()
		return
	}
	self.channels = slices.Delete(slices.Clone(self.channels), i, i+1)
	guestLostHost := (self.state == StateConnecting || self.state == StateConnected) && len(self.channels) == 0
	if guestLostHost {
		self.state = StateIdle
		self.users = map[string]User{}
	}
	self.stateLock.Unlock()

	channel.Close()
	if guestLostHost {
		self.notifyState(StateIdle)
	}
}

func (self *Session) notifyState(state State) {
	for _, callback := range self.stateCallbacks.Get() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					glog.Errorf("[sn]state callback panic = %v\n", r)
				}
			}()
			callback(state)
		}()
	}
}

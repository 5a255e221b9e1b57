package session

import (
	"sync"
	"time"
)

// Player is the playback surface the session drives. Its event methods on
// PlaybackSync are expected to fire synchronously on programmatic calls.
type Player interface {
	Play()
	Pause()
	SeekToFrame(frame int)
}

type PlaybackSyncSettings struct {
	// EchoWindow suppresses outgoing playback messages for a short time
	// after applying a remote action, so the player events caused by the
	// programmatic call are not echoed back. This is a heuristic, not a
	// causality guarantee: a genuine local action inside the window is
	// also swallowed.
	EchoWindow time.Duration
}

func DefaultPlaybackSyncSettings() *PlaybackSyncSettings {
	return &PlaybackSyncSettings{
		EchoWindow: 50 * time.Millisecond,
	}
}

// PlaybackSync is the fire-and-forget play/pause/seek overlay. It is not
// CRDT-backed: a dropped message heals on the next action.
type PlaybackSync struct {
	session  *Session
	player   Player
	settings *PlaybackSyncSettings

	mutex         sync.Mutex
	suppressUntil time.Time

	unsub func()
}

func NewPlaybackSyncWithDefaults(session *Session, player Player) *PlaybackSync {
	return NewPlaybackSync(session, player, DefaultPlaybackSyncSettings())
}

func NewPlaybackSync(session *Session, player Player, settings *PlaybackSyncSettings) *PlaybackSync {
	playbackSync := &PlaybackSync{
		session:  session,
		player:   player,
		settings: settings,
	}
	playbackSync.unsub = session.OnPlayback(playbackSync.applyRemote)
	return playbackSync
}

func (self *PlaybackSync) Close() {
	if self.unsub != nil {
		self.unsub()
	}
}

func (self *PlaybackSync) applyRemote(action PlaybackAction, frame int) {
	self.mutex.Lock()
	self.suppressUntil = time.Now().Add(self.settings.EchoWindow)
	self.mutex.Unlock()

	switch action {
	case PlaybackPlay:
		self.player.Play()
	case PlaybackPause:
		self.player.Pause()
		self.player.SeekToFrame(frame)
	case PlaybackSeek:
		self.player.SeekToFrame(frame)
	}
}

func (self *PlaybackSync) suppressed() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return time.Now().Before(self.suppressUntil)
}

// PlayerPlayed is called by the player wiring on a play event.
func (self *PlaybackSync) PlayerPlayed() {
	if self.suppressed() {
		return
	}
	self.session.SendPlayback(PlaybackPlay, 0)
}

// PlayerPaused is called by the player wiring on a pause event.
func (self *PlaybackSync) PlayerPaused(frame int) {
	if self.suppressed() {
		return
	}
	self.session.SendPlayback(PlaybackPause, frame)
}

// PlayerSeeked is called by the player wiring on a seek event.
func (self *PlaybackSync) PlayerSeeked(frame int) {
	if self.suppressed() {
		return
	}
	self.session.SendPlayback(PlaybackSeek, frame)
}

package session

import (
	"errors"
	"sync"
)

var errChannelClosed = errors.New("channel closed")

type ReceiveFunction func(message []byte)

type ErrorFunction func(err error)

// Channel is an already-open, ordered, reliable, bidirectional byte-message
// pipe to one remote peer. How the channel was established is outside the
// session layer. Receive callbacks are invoked one message at a time, in
// order; a message is handled to completion before the next is delivered.
type Channel interface {
	Send(message []byte) error
	SetReceiveCallback(receiveCallback ReceiveFunction)
	SetErrorCallback(errorCallback ErrorFunction)
	Close()
}

// PipeChannel is an in-memory channel pair. Messages sent before the
// receive callback is set are buffered, then delivered in order.
// Delivery is synchronous on the sender's goroutine.
type PipeChannel struct {
	mutex           sync.Mutex
	peer            *PipeChannel
	receiveCallback ReceiveFunction
	errorCallback   ErrorFunction
	pending         [][]byte
	closed          bool
}

// NewPipeChannel returns the two connected ends.
func NewPipeChannel() (*PipeChannel, *PipeChannel) {
	a := &PipeChannel{}
	b := &PipeChannel{}
	a.peer = b
	b.peer = a
	return a, b
}

func (self *PipeChannel) Send(message []byte) error {
	self.mutex.Lock()
	if self.closed {
		self.mutex.Unlock()
		return errChannelClosed
	}
	peer := self.peer
	self.mutex.Unlock()

	peer.deliver(message)
	return nil
}

func (self *PipeChannel) deliver(message []byte) {
	self.mutex.Lock()
	if self.closed {
		self.mutex.Unlock()
		return
	}
	if self.receiveCallback == nil {
		self.pending = append(self.pending, message)
		self.mutex.Unlock()
		return
	}
	receiveCallback := self.receiveCallback
	self.mutex.Unlock()

	receiveCallback(message)
}

func (self *PipeChannel) SetReceiveCallback(receiveCallback ReceiveFunction) {
	self.mutex.Lock()
	self.receiveCallback = receiveCallback
	pending := self.pending
	self.pending = nil
	self.mutex.Unlock()

	if receiveCallback != nil {
		for _, message := range pending {
			receiveCallback(message)
		}
	}
}

func (self *PipeChannel) SetErrorCallback(errorCallback ErrorFunction) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.errorCallback = errorCallback
}

// Fail simulates a transport error on this end.
func (self *PipeChannel) Fail(err error) {
	self.mutex.Lock()
	errorCallback := self.errorCallback
	self.mutex.Unlock()

	if errorCallback != nil {
		errorCallback(err)
	}
}

func (self *PipeChannel) Close() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.closed = true
	self.pending = nil
}

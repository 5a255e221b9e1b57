package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

type WsChannelSettings struct {
	PingTimeout  time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

func DefaultWsChannelSettings() *WsChannelSettings {
	return &WsChannelSettings{
		PingTimeout:  1 * time.Second,
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
}

// WsChannel adapts an open websocket connection to the Channel interface.
// Empty binary messages are pings and never reach the receive callback.
type WsChannel struct {
	ctx    context.Context
	cancel context.CancelFunc

	ws       *websocket.Conn
	settings *WsChannelSettings

	writeLock sync.Mutex

	mutex           sync.Mutex
	receiveCallback ReceiveFunction
	errorCallback   ErrorFunction
	pending         [][]byte
}

func NewWsChannelWithDefaults(ctx context.Context, ws *websocket.Conn) *WsChannel {
	return NewWsChannel(ctx, ws, DefaultWsChannelSettings())
}

func NewWsChannel(ctx context.Context, ws *websocket.Conn, settings *WsChannelSettings) *WsChannel {
	cancelCtx, cancel := context.WithCancel(ctx)
	channel := &WsChannel{
		ctx:      cancelCtx,
		cancel:   cancel,
		ws:       ws,
		settings: settings,
	}
	go channel.run()
	return channel
}

func (self *WsChannel) run() {
	defer func() {
		self.cancel()
		self.ws.Close()
	}()

	go func() {
		defer self.cancel()

		for {
			select {
			case <-self.ctx.Done():
				return
			case <-time.After(self.settings.PingTimeout):
			}

			self.writeLock.Lock()
			self.ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
			err := self.ws.WriteMessage(websocket.BinaryMessage, make([]byte, 0))
			self.writeLock.Unlock()
			if err != nil {
				// note that for websocket a deadline timeout cannot be recovered
				self.fail(err)
				return
			}
		}
	}()

	for {
		select {
		case <-self.ctx.Done():
			return
		default:
		}

		self.ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		messageType, message, err := self.ws.ReadMessage()
		if err != nil {
			glog.Infof("[ch]<- error = %s\n", err)
			self.fail(err)
			return
		}

		switch messageType {
		case websocket.BinaryMessage, websocket.TextMessage:
			if len(message) == 0 {
				// ping
				glog.V(2).Infof("[ch]ping <-\n")
				continue
			}
			self.mutex.Lock()
			receiveCallback := self.receiveCallback
			if receiveCallback == nil {
				// arrived before the session attached, deliver later
				self.pending = append(self.pending, message)
			}
			self.mutex.Unlock()
			if receiveCallback != nil {
				receiveCallback(message)
			}
		default:
			glog.V(2).Infof("[ch]other=%d <-\n", messageType)
		}
	}
}

func (self *WsChannel) fail(err error) {
	self.mutex.Lock()
	errorCallback := self.errorCallback
	self.mutex.Unlock()

	if errorCallback != nil {
		errorCallback(err)
	}
}

func (self *WsChannel) Send(message []byte) error {
	select {
	case <-self.ctx.Done():
		return errChannelClosed
	default:
	}

	self.writeLock.Lock()
	defer self.writeLock.Unlock()

	self.ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	if err := self.ws.WriteMessage(websocket.BinaryMessage, message); err != nil {
		glog.Infof("[ch]-> error = %s\n", err)
		return err
	}
	glog.V(2).Infof("[ch]->\n")
	return nil
}

func (self *WsChannel) SetReceiveCallback(receiveCallback ReceiveFunction) {
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

func (self *WsChannel) SetErrorCallback(errorCallback ErrorFunction) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.errorCallback = errorCallback
}

func (self *WsChannel) Close() {
	self.cancel()
	self.ws.Close()
}

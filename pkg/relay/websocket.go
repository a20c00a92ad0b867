package relay

import (
	"io"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	log "github.com/sirupsen/logrus"
)

func (pc *PeerChannel) inboxWorker() {
	defer pc.Close()

	state := ws.StateServerSide
	ch := wsutil.ControlFrameHandler(pc.conn, state)

	r := &wsutil.Reader{
		Source:         pc.conn,
		State:          state,
		CheckUTF8:      true,
		OnIntermediate: ch,
	}

	for {
		h, err := r.NextFrame()
		if err != nil {
			if err != io.EOF {
				log.Debugf("websocket read message error: %v", err)
			}
			return
		}

		// We received an operation control frame and handle it before
		// continuation.
		if h.OpCode.IsControl() {
			// Check for OpClose before handling the control frame. On
			// OpClose the socket was closed by the client. We can exit
			// our handler now.
			if h.OpCode == ws.OpClose {
				log.Debug("websocket connection closed gracefully")
				return
			}

			if err = ch(h, r); err != nil {
				log.Debugf("websocket handles control frame error: %v", err)
				return
			}
			continue
		}

		// Read all data from websocket client
		req, err := io.ReadAll(r)
		if err != nil {
			log.Debugf("websocket read error: %v", err)
			return
		}

		// Handle the received data
		if _, _, err = pc.HandleMessage(req); err != nil {
			log.Errorf("websocket handle request error: %v", err)
			return
		}
	}
}

func (pc *PeerChannel) outboxWorker() {
	state := ws.StateServerSide
	w := wsutil.NewWriter(pc.conn, state, 0)

	for {
		select {
		case res := <-pc.wsOutboxCh:
			pc.webSocketWrite(w, state, res)
			if res.Flag != FlagContinue {
				return
			}
		case <-pc.wsCloseCh:
			pc.webSocketCloseGraceful(w, state)
			return
		}
	}
}

func (pc *PeerChannel) webSocketWrite(w *wsutil.Writer, state ws.State, res *Response) {
	var err error

	if res.Data != nil {
		w.Reset(pc.conn, state, ws.OpText)
		if _, err = w.Write(res.Data); err == nil {
			err = w.Flush()
		}
		if err != nil {
			log.Debugf("websocket write error: %s", err)
			pc.signalTerminate()
			return
		}
	}

	if res.Flag == FlagCloseGracefully {
		pc.webSocketCloseGraceful(w, state)
	} else if res.Flag == FlagTerminate {
		pc.signalTerminate()
	}
}

func (pc *PeerChannel) webSocketCloseGraceful(w *wsutil.Writer, state ws.State) {
	w.Reset(pc.conn, state, ws.OpClose)

	// Write empty string
	var err error
	if _, err = w.Write([]byte("")); err == nil {
		err = w.Flush()
	}
	if err != nil {
		log.Debugf("websocket write error: %s", err)
	}

	pc.signalTerminate()
}

func (pc *PeerChannel) signalTerminate() {
	pc.terminateOnce.Do(func() {
		close(pc.wsTerminateCh)
	})
}

package relay

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// expirySweepInterval is how often due sessions and stale devices are
// collected. Independent of the heartbeat cadence.
const expirySweepInterval = 30 * time.Second

// Sweeper runs the relay's periodic maintenance: it pings every
// registered connection, closes the ones that went silent, expires due
// sessions and garbage-collects stale device records.
type Sweeper struct {
	ctrl     *Controller
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSweeper(ctrl *Controller) *Sweeper {
	return &Sweeper{
		ctrl:   ctrl,
		stopCh: make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.livenessLoop()
	go s.expiryLoop()
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Sweeper) livenessLoop() {
	t := time.NewTicker(s.ctrl.opts.HeartbeatInterval)
	defer t.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-t.C:
			s.sweepLiveness(now)
		}
	}
}

func (s *Sweeper) expiryLoop() {
	t := time.NewTicker(expirySweepInterval)
	defer t.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-t.C:
			s.sweepExpiry(now)
			s.sweepDevices(now)
		}
	}
}

// sweepLiveness closes every connection that went silent for longer
// than the heartbeat timeout and pings the rest. A connection whose
// outbound path cannot even take a ping is treated as dead too.
func (s *Sweeper) sweepLiveness(now time.Time) {
	timeout := s.ctrl.opts.HeartbeatTimeout

	for _, pc := range s.ctrl.conns.Channels() {
		if now.Sub(pc.LastActivity()) > timeout {
			log.Infof("sweeper closing silent %s connection of session '%s'", pc.Role(), pc.SessionID())
			pc.ForceClose()
			continue
		}

		if !pc.SendPing(now) {
			log.Warnf("sweeper closing unresponsive %s connection of session '%s'", pc.Role(), pc.SessionID())
			pc.ForceClose()
		}
	}
}

func (s *Sweeper) sweepExpiry(now time.Time) {
	expired, err := s.ctrl.store.Sessions().ExpireDue(now)
	if err != nil {
		log.Errorf("sweeper failed to collect due sessions: %v", err)
		return
	}

	for _, sess := range expired {
		s.ctrl.expireSession(sess)
	}
}

func (s *Sweeper) sweepDevices(now time.Time) {
	for _, deviceID := range s.ctrl.devices.Sweep(now) {
		s.ctrl.events.PublishDevice(DeviceEvent{Event: "removed", DeviceID: deviceID})
	}
}

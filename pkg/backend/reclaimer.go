package backend

import (
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"
)

// StartReclaimDaemon sweeps reservations whose soft lock lapsed without the
// domain ever verifying. Reclaim is already lazy (the registry treats an
// expired RESERVED row as absent on a fresh reservation), so the sweep only
// keeps the table from accumulating dead rows.
func (b *backend) StartReclaimDaemon(stopCh <-chan struct{}) {
	logrus.Infof("starting reservation reclaim daemon, interval: %vs", b.cfg.ReclaimIntervalSecs)
	wait.JitterUntil(b.reclaim, time.Duration(b.cfg.ReclaimIntervalSecs)*time.Second, .002, true, stopCh)
}

func (b *backend) reclaim() {
	reclaimed, err := b.db.PurgeExpiredReservations(time.Now())
	if err != nil {
		logrus.Errorf("problem reclaiming expired reservations: %v", err)
		return
	}
	if reclaimed > 0 {
		logrus.Infof("expired reservations reclaimed: %v", reclaimed)
	}
}

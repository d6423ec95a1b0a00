package consensus

import (
	"time"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

var (
	tickTockBufferSize = 10
)

// timeoutInfo carries a scheduled round timeout through the clock.
type timeoutInfo struct {
	Duration time.Duration `json:"duration"`
	Round    types.Round   `json:"round"`
}

func (ti timeoutInfo) String() string {
	return ti.Round.String() + "/" + ti.Duration.String()
}

// RoundClock is a timer whose firings are received on Chan. Scheduling a
// timeout overwrites any pending one, so at most one round timer is armed at
// a time. Stale firings for rounds the caller has already left are filtered
// by the consensus routine, not here.
type RoundClock interface {
	Start() error
	Stop() error
	Chan() <-chan timeoutInfo
	ScheduleTimeout(ti timeoutInfo)
}

type roundClock struct {
	service.BaseService

	timer    *time.Timer
	tickChan chan timeoutInfo // for scheduling
	tockChan chan timeoutInfo // for firing
}

var _ RoundClock = (*roundClock)(nil)

func NewRoundClock() RoundClock {
	rc := &roundClock{
		timer:    time.NewTimer(0),
		tickChan: make(chan timeoutInfo, tickTockBufferSize),
		tockChan: make(chan timeoutInfo, tickTockBufferSize),
	}
	rc.BaseService = *service.NewBaseService(nil, "RoundClock", rc)
	rc.stopTimer()
	return rc
}

func (rc *roundClock) SetLogger(l log.Logger) {
	rc.BaseService.Logger = l
}

func (rc *roundClock) OnStart() error {
	go rc.timeoutRoutine()
	return nil
}

func (rc *roundClock) OnStop() {
	rc.BaseService.OnStop()
	rc.stopTimer()
}

func (rc *roundClock) Chan() <-chan timeoutInfo {
	return rc.tockChan
}

func (rc *roundClock) ScheduleTimeout(ti timeoutInfo) {
	rc.tickChan <- ti
}

func (rc *roundClock) stopTimer() {
	if !rc.timer.Stop() {
		select {
		case <-rc.timer.C:
		default:
		}
	}
}

// timeoutRoutine arms the timer on ticks and relays firings as tocks. The
// relayed round lets the consumer drop firings for rounds it already left.
func (rc *roundClock) timeoutRoutine() {
	var ti timeoutInfo
	for {
		select {
		case newti := <-rc.tickChan:
			// a later schedule always wins
			rc.stopTimer()
			ti = newti
			rc.timer.Reset(ti.Duration)
			rc.Logger.Debug("scheduled timeout", "dur", ti.Duration, "round", ti.Round)

		case <-rc.timer.C:
			rc.Logger.Info("timed out", "dur", ti.Duration, "round", ti.Round)
			// go routine here guarantees timeoutRoutine doesn't block on tockChan
			go func(toi timeoutInfo) { rc.tockChan <- toi }(ti)

		case <-rc.Quit():
			return
		}
	}
}

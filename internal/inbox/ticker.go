package inbox

import "time"

// Ticker is the subset of time.Ticker the background loops use.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every interval.
type TickerFactory func(interval time.Duration) Ticker

type clockTicker struct {
	ticker *time.Ticker
}

func (t clockTicker) C() <-chan time.Time { return t.ticker.C }

func (t clockTicker) Stop() { t.ticker.Stop() }

// NewClockTicker returns a ticker backed by time.NewTicker.
func NewClockTicker(interval time.Duration) Ticker {
	return clockTicker{ticker: time.NewTicker(interval)}
}

// loop runs fn on every tick until stop is closed, then closes done.
func loop(ticker Ticker, stop <-chan struct{}, done chan<- struct{}, fn func()) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			fn()
		}
	}
}

package ud

import (
	"fmt"
	"time"
)

// Window bounds. MIN_WINDOW isn't named explicitly in the configuration
// table but is required by the congestion-control algorithm's
// multiplicative-decrease floor; the original source fixes it at 1.
const (
	MinWindow        = 1
	defaultMaxWindow = 1024
)

// Config carries every recognized configuration option for the
// reliability layer, plus the implementation-defined knobs derived from
// them (queue lengths, reorder tolerance, ack threshold, pool sizes).
// Validate fills unset fields with their defaults and rejects invalid
// combinations, in the style of ManagerConfig.Validate in the
// liveness package.
type Config struct {
	// LingerTimeout is the grace period a closed endpoint is retained
	// to keep draining retransmits before being freed. Default 5m.
	LingerTimeout time.Duration
	// PeerTimeout is the connection death threshold: no RX for this
	// long transitions an endpoint to FAILED. Default 30s.
	PeerTimeout time.Duration
	// TimerTick is the initial retransmit timer period. Default 10ms.
	TimerTick time.Duration
	// TimerBackoff is the per-epoch retransmit delay multiplier; must
	// be >= 1.0. Default 2.0.
	TimerBackoff float64
	// AsyncTimerTick is the async-progress dispatch period. Default
	// 100ms.
	AsyncTimerTick time.Duration
	// MinPokeTime is the minimum interval between solicited
	// ACK-request stamps on outgoing data packets. Default 250ms.
	MinPokeTime time.Duration
	// EthDGIDCheck enables GRH destination-GID validation on
	// Ethernet/RoCE fabrics. Default true.
	EthDGIDCheck bool
	// MaxWindow bounds the congestion window. Default 1024.
	MaxWindow int
	// RxAsyncMaxPoll bounds how many deferred receive completions one
	// Progress call dispatches; the rest carry over. Default 64.
	RxAsyncMaxPoll int

	// TxQueueLen is the number of send work requests the fabric queue
	// pair can have outstanding; tx.available is initialized to this.
	TxQueueLen int
	// RxQueueLen is the number of pre-posted receive buffers.
	RxQueueLen int
	// OOOPSNLimit bounds how far ahead of rx.acked_psn an
	// out-of-order packet may be buffered instead of dropped.
	OOOPSNLimit int
	// AckThreshold is the number of un-ACKed received PSNs that
	// triggers an explicit ACK.
	AckThreshold int
	// SkbPoolSize bounds the shared send/receive skb pools.
	SkbPoolSize int
}

// DefaultConfig returns a Config with every field at its documented
// default.
func DefaultConfig() Config {
	return Config{
		LingerTimeout:  5 * time.Minute,
		PeerTimeout:    30 * time.Second,
		TimerTick:      10 * time.Millisecond,
		TimerBackoff:   2.0,
		AsyncTimerTick: 100 * time.Millisecond,
		MinPokeTime:    250 * time.Millisecond,
		EthDGIDCheck:   true,
		MaxWindow:      defaultMaxWindow,
		RxAsyncMaxPoll: 64,
		TxQueueLen:     256,
		RxQueueLen:     256,
		OOOPSNLimit:    64,
		AckThreshold:   8,
		SkbPoolSize:    512,
	}
}

// Validate fills zero-valued fields with their defaults and rejects
// invalid combinations, returning a descriptive *Error with
// KindInvalidParam on failure. OOOPSNLimit is the one exception to the
// default-fill: zero is kept as is and disables out-of-order buffering.
func (c *Config) Validate() error {
	def := DefaultConfig()

	if c.LingerTimeout == 0 {
		c.LingerTimeout = def.LingerTimeout
	}
	if c.PeerTimeout == 0 {
		c.PeerTimeout = def.PeerTimeout
	}
	if c.TimerTick == 0 {
		c.TimerTick = def.TimerTick
	}
	if c.TimerBackoff == 0 {
		c.TimerBackoff = def.TimerBackoff
	}
	if c.AsyncTimerTick == 0 {
		c.AsyncTimerTick = def.AsyncTimerTick
	}
	if c.MinPokeTime == 0 {
		c.MinPokeTime = def.MinPokeTime
	}
	if c.MaxWindow == 0 {
		c.MaxWindow = def.MaxWindow
	}
	if c.RxAsyncMaxPoll == 0 {
		c.RxAsyncMaxPoll = def.RxAsyncMaxPoll
	}
	if c.TxQueueLen == 0 {
		c.TxQueueLen = def.TxQueueLen
	}
	if c.RxQueueLen == 0 {
		c.RxQueueLen = def.RxQueueLen
	}
	if c.AckThreshold == 0 {
		c.AckThreshold = def.AckThreshold
	}
	if c.SkbPoolSize == 0 {
		c.SkbPoolSize = def.SkbPoolSize
	}

	if c.PeerTimeout <= 0 {
		return newErr("Config.Validate", KindInvalidParam, fmt.Errorf("peer_timeout must be > 0, got %s", c.PeerTimeout))
	}
	if c.TimerTick <= 0 {
		return newErr("Config.Validate", KindInvalidParam, fmt.Errorf("timer_tick must be > 0, got %s", c.TimerTick))
	}
	if c.TimerBackoff < 1.0 {
		return newErr("Config.Validate", KindInvalidParam, fmt.Errorf("timer_backoff must be >= 1.0, got %v", c.TimerBackoff))
	}
	if c.MaxWindow < MinWindow {
		return newErr("Config.Validate", KindInvalidParam, fmt.Errorf("max_window must be >= %d, got %d", MinWindow, c.MaxWindow))
	}
	if c.RxAsyncMaxPoll <= 0 {
		return newErr("Config.Validate", KindInvalidParam, fmt.Errorf("rx_async_max_poll must be > 0, got %d", c.RxAsyncMaxPoll))
	}
	if c.TxQueueLen <= 0 {
		return newErr("Config.Validate", KindInvalidParam, fmt.Errorf("tx_queue_len must be > 0, got %d", c.TxQueueLen))
	}
	if c.RxQueueLen <= 0 {
		return newErr("Config.Validate", KindInvalidParam, fmt.Errorf("rx_queue_len must be > 0, got %d", c.RxQueueLen))
	}
	if c.AckThreshold <= 0 {
		return newErr("Config.Validate", KindInvalidParam, fmt.Errorf("ack_threshold must be > 0, got %d", c.AckThreshold))
	}
	if c.SkbPoolSize <= 0 {
		return newErr("Config.Validate", KindInvalidParam, fmt.Errorf("skb_pool_size must be > 0, got %d", c.SkbPoolSize))
	}
	if c.OOOPSNLimit < 0 {
		return newErr("Config.Validate", KindInvalidParam, fmt.Errorf("ooo_psn_limit must be >= 0, got %d", c.OOOPSNLimit))
	}

	return nil
}

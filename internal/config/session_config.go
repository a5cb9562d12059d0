package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	qrTTLVar            = "QR_TTL"
	qrTimeoutVar        = "QR_TIMEOUT"
	persistSettleVar    = "PERSIST_SETTLE"
	persistMaxSettleVar = "PERSIST_MAX_SETTLE"
	sendTimeoutVar      = "SEND_TIMEOUT"
	bulkConcurrencyVar  = "BULK_CONCURRENCY"
)

type SessionConfig interface {
	GetQRTTL() time.Duration
	GetQRTimeout() time.Duration
	GetPersistSettle() time.Duration
	GetPersistMaxSettle() time.Duration
	GetSendTimeout() time.Duration
	GetBulkConcurrency() int
}

type Sessions struct {
	v *viper.Viper
}

var _ SessionConfig = Sessions{}

// GetQRTTL is how long an issued pairing code is reused before a new one is awaited
func (s Sessions) GetQRTTL() time.Duration {
	return durationOr(s.v.GetDuration(qrTTLVar), 20*time.Second)
}

// GetQRTimeout bounds how long a caller waits for a pairing code to be produced
func (s Sessions) GetQRTimeout() time.Duration {
	return durationOr(s.v.GetDuration(qrTimeoutVar), 15*time.Second)
}

// GetPersistSettle is the quiet period required on the credential directory before upload
func (s Sessions) GetPersistSettle() time.Duration {
	return durationOr(s.v.GetDuration(persistSettleVar), 2*time.Second)
}

func (s Sessions) GetPersistMaxSettle() time.Duration {
	return durationOr(s.v.GetDuration(persistMaxSettleVar), 10*time.Second)
}

func (s Sessions) GetSendTimeout() time.Duration {
	return durationOr(s.v.GetDuration(sendTimeoutVar), 30*time.Second)
}

func (s Sessions) GetBulkConcurrency() int {
	if n := s.v.GetInt(bulkConcurrencyVar); n > 0 {
		return n
	}
	return 4
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

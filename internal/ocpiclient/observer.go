package ocpiclient

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"cpo/internal/metrics"
	"cpo/internal/models"
)

// CallInfo describes one finished outbound call, retries included.
type CallInfo struct {
	Party         models.PartyIdentity
	Module        models.ModuleID
	Method        string
	URL           string
	RequestID     string
	CorrelationID string
	Attempts      int
	HTTPStatus    int
	StatusCode    int
	Duration      time.Duration
	Err           error
}

// Observer is called after every outbound call, in registration order.
type Observer func(CallInfo)

func LogObserver(log *zap.Logger) Observer {
	return func(c CallInfo) {
		fields := []zap.Field{
			zap.Stringer("party", c.Party),
			zap.String("module", string(c.Module)),
			zap.String("method", c.Method),
			zap.String("url", c.URL),
			zap.String("request_id", c.RequestID),
			zap.String("correlation_id", c.CorrelationID),
			zap.Int("attempts", c.Attempts),
			zap.Int("http_status", c.HTTPStatus),
			zap.Int("status_code", c.StatusCode),
			zap.Duration("duration", c.Duration),
		}
		if c.Err != nil {
			log.Warn("outbound call failed", append(fields, zap.Error(c.Err))...)
			return
		}
		log.Info("outbound call", fields...)
	}
}

func MetricsObserver(m *metrics.Collector) Observer {
	return func(c CallInfo) {
		status := "error"
		if c.HTTPStatus != 0 {
			status = strconv.Itoa(c.HTTPStatus)
		}
		m.ObserveClientRequest(string(c.Module), c.Method, status, c.Attempts, c.Duration)
	}
}

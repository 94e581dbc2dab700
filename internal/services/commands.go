package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"cpo/internal/models"
)

const DefaultCommandTimeout = 15 * time.Second

// CommandHandler executes one command on behalf of the requesting party. A nil response means
// the handler has nothing to say and the default answer is sent.
type CommandHandler func(ctx context.Context, from models.PartyIdentity, cmd models.Command) (*models.CommandResponse, error)

// CommandObserver is told about every dispatched command.
type CommandObserver func(t models.CommandType, resp models.CommandResponse, elapsed time.Duration)

// CommandDispatcher owns one handler slot per command kind.
type CommandDispatcher struct {
	mu        sync.RWMutex
	handlers  map[models.CommandType]CommandHandler
	timeout   time.Duration
	observers []CommandObserver
	log       *zap.Logger
}

func NewCommandDispatcher(timeout time.Duration, log *zap.Logger, observers ...CommandObserver) *CommandDispatcher {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CommandDispatcher{
		handlers:  make(map[models.CommandType]CommandHandler),
		timeout:   timeout,
		observers: observers,
		log:       log,
	}
}

// Handle registers h for t, replacing any previous handler. A nil h clears the slot.
func (d *CommandDispatcher) Handle(t models.CommandType, h CommandHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		delete(d.handlers, t)
		return
	}
	d.handlers[t] = h
}

func (d *CommandDispatcher) handler(t models.CommandType) CommandHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[t]
}

// ParseCommand decodes and validates the document of a command kind.
func ParseCommand(t models.CommandType, raw []byte) (models.Command, error) {
	var cmd models.Command
	var err error
	switch t {
	case models.CommandReserveNow:
		cmd, err = decodeCommand[models.ReserveNow](raw)
	case models.CommandCancelReservation:
		cmd, err = decodeCommand[models.CancelReservation](raw)
	case models.CommandStartSession:
		cmd, err = decodeCommand[models.StartSession](raw)
	case models.CommandStopSession:
		cmd, err = decodeCommand[models.StopSession](raw)
	case models.CommandUnlockConnector:
		cmd, err = decodeCommand[models.UnlockConnector](raw)
	default:
		return nil, fmt.Errorf("command %q: %w", t, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func decodeCommand[C models.Command](raw []byte) (models.Command, error) {
	var c C
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, models.Invalid("command body: %v", err)
	}
	return c, nil
}

// Dispatch parses raw and hands the command to the registered handler. Malformed documents
// never reach a handler.
func (d *CommandDispatcher) Dispatch(ctx context.Context, from models.PartyIdentity, t models.CommandType, raw []byte) (models.CommandResponse, error) {
	cmd, err := ParseCommand(t, raw)
	if err != nil {
		return models.CommandResponse{}, err
	}
	start := time.Now()
	resp := models.NotSupportedResponse(d.timeout)
	if h := d.handler(t); h != nil {
		out, err := h(ctx, from, cmd)
		if err != nil {
			d.log.Error("command handler failed", zap.String("command", string(t)),
				zap.Stringer("party", from), zap.Error(err))
			return models.CommandResponse{}, fmt.Errorf("command %s: %w", t, err)
		}
		if out != nil {
			resp = *out
			if resp.Timeout == 0 {
				resp.Timeout = int(d.timeout / time.Second)
			}
		}
	}
	elapsed := time.Since(start)
	d.log.Info("command dispatched", zap.String("command", string(t)), zap.Stringer("party", from),
		zap.String("result", string(resp.Result)), zap.Duration("elapsed", elapsed))
	for _, o := range d.observers {
		o(t, resp, elapsed)
	}
	return resp, nil
}

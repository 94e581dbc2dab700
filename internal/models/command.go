package models

import "time"

type CommandType string

const (
	CommandReserveNow        CommandType = "RESERVE_NOW"
	CommandCancelReservation CommandType = "CANCEL_RESERVATION"
	CommandStartSession      CommandType = "START_SESSION"
	CommandStopSession       CommandType = "STOP_SESSION"
	CommandUnlockConnector   CommandType = "UNLOCK_CONNECTOR"
)

var CommandTypes = []CommandType{
	CommandReserveNow,
	CommandCancelReservation,
	CommandStartSession,
	CommandStopSession,
	CommandUnlockConnector,
}

func ParseCommandType(s string) (CommandType, bool) {
	for _, t := range CommandTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

type CommandResponseType string

const (
	CommandAccepted       CommandResponseType = "ACCEPTED"
	CommandRejected       CommandResponseType = "REJECTED"
	CommandNotSupported   CommandResponseType = "NOT_SUPPORTED"
	CommandTimeout        CommandResponseType = "TIMEOUT"
	CommandUnknownSession CommandResponseType = "UNKNOWN_SESSION"
)

// CommandResponse is the synchronous answer to a command. Timeout is in seconds.
type CommandResponse struct {
	Result  CommandResponseType `json:"result"`
	Timeout int                 `json:"timeout"`
	Message []DisplayText       `json:"message,omitempty"`
}

func NotSupportedResponse(timeout time.Duration) CommandResponse {
	return CommandResponse{
		Result:  CommandNotSupported,
		Timeout: int(timeout / time.Second),
		Message: []DisplayText{{Language: "en", Text: "Not supported!"}},
	}
}

type CommandResultType string

const (
	ResultAccepted            CommandResultType = "ACCEPTED"
	ResultCanceledReservation CommandResultType = "CANCELED_RESERVATION"
	ResultEVSEOccupied        CommandResultType = "EVSE_OCCUPIED"
	ResultEVSEInoperative     CommandResultType = "EVSE_INOPERATIVE"
	ResultFailed              CommandResultType = "FAILED"
	ResultNotSupported        CommandResultType = "NOT_SUPPORTED"
	ResultRejected            CommandResultType = "REJECTED"
	ResultTimeout             CommandResultType = "TIMEOUT"
	ResultUnknownReservation  CommandResultType = "UNKNOWN_RESERVATION"
)

// CommandResult is the asynchronous outcome posted to the command's response_url.
type CommandResult struct {
	Result  CommandResultType `json:"result"`
	Message []DisplayText     `json:"message,omitempty"`
}

type Command interface {
	Type() CommandType
	CallbackURL() string
	Validate() error
}

type ReserveNow struct {
	ResponseURL            string    `json:"response_url" validate:"required"`
	Token                  Token     `json:"token"`
	ExpiryDate             time.Time `json:"expiry_date" validate:"required"`
	ReservationID          string    `json:"reservation_id" validate:"required"`
	LocationID             string    `json:"location_id" validate:"required"`
	EVSEUID                string    `json:"evse_uid,omitempty"`
	AuthorizationReference string    `json:"authorization_reference,omitempty"`
}

func (c ReserveNow) Type() CommandType   { return CommandReserveNow }
func (c ReserveNow) CallbackURL() string { return c.ResponseURL }

func (c ReserveNow) Validate() error { return check("reserve now", c) }

type CancelReservation struct {
	ResponseURL   string `json:"response_url" validate:"required"`
	ReservationID string `json:"reservation_id" validate:"required"`
}

func (c CancelReservation) Type() CommandType   { return CommandCancelReservation }
func (c CancelReservation) CallbackURL() string { return c.ResponseURL }

func (c CancelReservation) Validate() error { return check("cancel reservation", c) }

type StartSession struct {
	ResponseURL            string `json:"response_url" validate:"required"`
	Token                  Token  `json:"token"`
	LocationID             string `json:"location_id" validate:"required"`
	EVSEUID                string `json:"evse_uid,omitempty" validate:"required_with=ConnectorID"`
	ConnectorID            string `json:"connector_id,omitempty"`
	AuthorizationReference string `json:"authorization_reference,omitempty"`
}

func (c StartSession) Type() CommandType   { return CommandStartSession }
func (c StartSession) CallbackURL() string { return c.ResponseURL }

func (c StartSession) Validate() error { return check("start session", c) }

type StopSession struct {
	ResponseURL string `json:"response_url" validate:"required"`
	SessionID   string `json:"session_id" validate:"required"`
}

func (c StopSession) Type() CommandType   { return CommandStopSession }
func (c StopSession) CallbackURL() string { return c.ResponseURL }

func (c StopSession) Validate() error { return check("stop session", c) }

type UnlockConnector struct {
	ResponseURL string `json:"response_url" validate:"required"`
	LocationID  string `json:"location_id" validate:"required"`
	EVSEUID     string `json:"evse_uid" validate:"required"`
	ConnectorID string `json:"connector_id" validate:"required"`
}

func (c UnlockConnector) Type() CommandType   { return CommandUnlockConnector }
func (c UnlockConnector) CallbackURL() string { return c.ResponseURL }

func (c UnlockConnector) Validate() error { return check("unlock connector", c) }

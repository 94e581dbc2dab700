package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cpo/internal/models"
)

var requester = models.NewPartyIdentity("NL", "EMS", models.RoleEMSP)

var validBodies = map[models.CommandType]string{
	models.CommandReserveNow: `{"response_url":"https://emsp.example.com/cb/1","token":{"country_code":"NL","party_id":"EMS","uid":"U1","type":"RFID"},
		"expiry_date":"2024-05-01T12:00:00Z","reservation_id":"R1","location_id":"LOC1"}`,
	models.CommandCancelReservation: `{"response_url":"https://emsp.example.com/cb/2","reservation_id":"R1"}`,
	models.CommandStartSession:      `{"response_url":"https://emsp.example.com/cb/3","token":{"country_code":"NL","party_id":"EMS","uid":"U1","type":"RFID"},"location_id":"LOC1","evse_uid":"E1"}`,
	models.CommandStopSession:       `{"response_url":"https://emsp.example.com/cb/4","session_id":"S1"}`,
	models.CommandUnlockConnector:   `{"response_url":"https://emsp.example.com/cb/5","location_id":"LOC1","evse_uid":"E1","connector_id":"1"}`,
}

func TestDispatchWithoutHandlerIsNotSupported(t *testing.T) {
	d := NewCommandDispatcher(0, zap.NewNop())
	for _, ct := range models.CommandTypes {
		resp, err := d.Dispatch(context.Background(), requester, ct, []byte(validBodies[ct]))
		require.NoError(t, err, ct)
		assert.Equal(t, models.CommandNotSupported, resp.Result, ct)
		assert.Equal(t, 15, resp.Timeout, ct)
		require.Len(t, resp.Message, 1)
		assert.Equal(t, "Not supported!", resp.Message[0].Text)
	}
}

func TestDispatchUsesConfiguredTimeout(t *testing.T) {
	d := NewCommandDispatcher(30*time.Second, zap.NewNop())
	resp, err := d.Dispatch(context.Background(), requester, models.CommandStopSession, []byte(validBodies[models.CommandStopSession]))
	require.NoError(t, err)
	assert.Equal(t, 30, resp.Timeout)
}

func TestDispatchFillsTimeoutLeftZeroByHandler(t *testing.T) {
	d := NewCommandDispatcher(30*time.Second, zap.NewNop())
	d.Handle(models.CommandStopSession, func(context.Context, models.PartyIdentity, models.Command) (*models.CommandResponse, error) {
		return &models.CommandResponse{Result: models.CommandAccepted}, nil
	})

	resp, err := d.Dispatch(context.Background(), requester, models.CommandStopSession, []byte(validBodies[models.CommandStopSession]))
	require.NoError(t, err)
	assert.Equal(t, models.CommandAccepted, resp.Result)
	assert.Equal(t, 30, resp.Timeout)
}

func TestDispatchInvokesHandlerOnce(t *testing.T) {
	var observed []models.CommandResponseType
	d := NewCommandDispatcher(0, zap.NewNop(), func(_ models.CommandType, resp models.CommandResponse, _ time.Duration) {
		observed = append(observed, resp.Result)
	})
	calls := 0
	d.Handle(models.CommandStartSession, func(_ context.Context, from models.PartyIdentity, cmd models.Command) (*models.CommandResponse, error) {
		calls++
		assert.True(t, from.Equal(requester))
		start, ok := cmd.(models.StartSession)
		require.True(t, ok)
		assert.Equal(t, "LOC1", start.LocationID)
		assert.Equal(t, "https://emsp.example.com/cb/3", cmd.CallbackURL())
		return &models.CommandResponse{Result: models.CommandAccepted, Timeout: 30}, nil
	})

	resp, err := d.Dispatch(context.Background(), requester, models.CommandStartSession, []byte(validBodies[models.CommandStartSession]))
	require.NoError(t, err)
	assert.Equal(t, models.CommandAccepted, resp.Result)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []models.CommandResponseType{models.CommandAccepted}, observed)
}

func TestDispatchNilHandlerResultFallsBack(t *testing.T) {
	d := NewCommandDispatcher(0, zap.NewNop())
	d.Handle(models.CommandStopSession, func(context.Context, models.PartyIdentity, models.Command) (*models.CommandResponse, error) {
		return nil, nil
	})
	resp, err := d.Dispatch(context.Background(), requester, models.CommandStopSession, []byte(validBodies[models.CommandStopSession]))
	require.NoError(t, err)
	assert.Equal(t, models.CommandNotSupported, resp.Result)

	d.Handle(models.CommandStopSession, nil)
	resp, err = d.Dispatch(context.Background(), requester, models.CommandStopSession, []byte(validBodies[models.CommandStopSession]))
	require.NoError(t, err)
	assert.Equal(t, models.CommandNotSupported, resp.Result)
}

func TestDispatchMalformedBodyNeverReachesHandler(t *testing.T) {
	d := NewCommandDispatcher(0, zap.NewNop())
	d.Handle(models.CommandUnlockConnector, func(context.Context, models.PartyIdentity, models.Command) (*models.CommandResponse, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})

	for _, body := range []string{`{`, `[]`, `{"response_url":"x","location_id":"L"}`, `{"location_id":"L","evse_uid":"E","connector_id":"1"}`} {
		_, err := d.Dispatch(context.Background(), requester, models.CommandUnlockConnector, []byte(body))
		assert.ErrorIs(t, err, models.ErrInvalid, body)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	d := NewCommandDispatcher(0, zap.NewNop())
	_, err := d.Dispatch(context.Background(), requester, models.CommandType("SELF_DESTRUCT"), []byte(`{}`))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDispatchHandlerError(t *testing.T) {
	d := NewCommandDispatcher(0, zap.NewNop())
	boom := errors.New("charger offline")
	d.Handle(models.CommandCancelReservation, func(context.Context, models.PartyIdentity, models.Command) (*models.CommandResponse, error) {
		return nil, boom
	})
	_, err := d.Dispatch(context.Background(), requester, models.CommandCancelReservation, []byte(validBodies[models.CommandCancelReservation]))
	assert.ErrorIs(t, err, boom)
}

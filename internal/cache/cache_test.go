package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "chargepoint:CP001:info", InfoKey("CP001"))
	assert.Equal(t, "chargepoint:CP001:connectors", ConnectorsKey("CP001"))
	assert.Equal(t, "chargepoint:CP001:status", StatusKey("CP001"))
	assert.Equal(t, "chargeStations:all", AllStationsKey)
}

func TestRedisGateway_SetString(t *testing.T) {
	client, mock := redismock.NewClientMock()
	g := NewRedisGatewayFromClient(client)

	mock.ExpectSet("chargepoint:CP001:status", "online", StatusTTL).SetVal("OK")

	err := g.Set(context.Background(), StatusKey("CP001"), "online", StatusTTL)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisGateway_SetStruct(t *testing.T) {
	client, mock := redismock.NewClientMock()
	g := NewRedisGatewayFromClient(client)

	rec := DisconnectRecord{Status: "unavailable", DisconnectedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	payload, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectSet("chargepoint:CP001:status", payload, StatusTTL).SetVal("OK")

	err = g.Set(context.Background(), StatusKey("CP001"), rec, StatusTTL)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisGateway_GetMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	g := NewRedisGatewayFromClient(client)

	mock.ExpectGet("chargepoint:CP404:info").RedisNil()

	_, err := g.Get(context.Background(), InfoKey("CP404"))
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisGateway_GetHit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	g := NewRedisGatewayFromClient(client)

	mock.ExpectGet("chargepoint:CP001:info").SetVal(`{"id":"CP001"}`)

	val, err := g.Get(context.Background(), InfoKey("CP001"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"CP001"}`, string(val))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisGateway_Del(t *testing.T) {
	client, mock := redismock.NewClientMock()
	g := NewRedisGatewayFromClient(client)

	mock.ExpectDel("chargeStations:all").SetVal(1)

	assert.NoError(t, g.Del(context.Background(), AllStationsKey))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewDisconnectRecord(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := NewDisconnectRecord(ts)
	assert.Equal(t, "unavailable", rec.Status)
	assert.Equal(t, ts, rec.DisconnectedAt)
}

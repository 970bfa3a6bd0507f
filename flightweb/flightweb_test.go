package flightweb

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RocketScienceOfficial/rocket-nav-lib/ahrs"
	"github.com/RocketScienceOfficial/rocket-nav-lib/ekf"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flight"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flightphase"
)

func startRoom(t *testing.T) (*Room, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	room := NewRoom()
	go room.Run(ctx)
	srv := httptest.NewServer(room)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return room, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// listen decodes every message arriving on conn until it is closed.
func listen(conn *websocket.Conn) <-chan Telemetry {
	ch := make(chan Telemetry, 100)
	go func() {
		defer close(ch)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var tel Telemetry
			if json.Unmarshal(msg, &tel) == nil {
				ch <- tel
			}
		}
	}()
	return ch
}

// receive waits for one message on ch, calling send again until the room
// has registered the listener.
func receive(t *testing.T, ch <-chan Telemetry, send func()) Telemetry {
	t.Helper()
	for i := 0; i < 50; i++ {
		send()
		select {
		case tel, ok := <-ch:
			require.True(t, ok, "connection closed")
			return tel
		case <-time.After(100 * time.Millisecond):
		}
	}
	t.Fatal("no message relayed")
	return Telemetry{}
}

func TestRoomRelaysClientMessages(t *testing.T) {
	_, url := startRoom(t)

	reader, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer reader.Close()

	cl, err := Dial(url)
	require.NoError(t, err)
	defer cl.Close()

	sent := Telemetry{T: 1.5, Phase: "FreeFlight", Altitude: 321}
	got := receive(t, listen(reader), func() { require.NoError(t, cl.Send(sent)) })
	assert.Equal(t, 1.5, got.T)
	assert.Equal(t, "FreeFlight", got.Phase)
	assert.Equal(t, 321.0, got.Altitude)
}

func TestSendAfterServerGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	room := NewRoom()
	go room.Run(ctx)
	srv := httptest.NewServer(room)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	cl, err := Dial(url)
	require.NoError(t, err)
	require.NoError(t, cl.Send(Telemetry{T: 1}))

	// Stopping the room drops the socket, closing the server refuses redials
	cancel()
	srv.Close()

	var failed error
	for i := 0; i < 100 && failed == nil; i++ {
		failed = cl.Send(Telemetry{T: float64(i)})
		time.Sleep(10 * time.Millisecond)
	}
	require.Error(t, failed, "writes to a closed socket kept succeeding")

	for i := 0; i < 3; i++ {
		err := cl.Send(Telemetry{T: 2})
		assert.True(t, errors.Is(err, ErrNotConnected), "send %d: %v", i, err)
	}
	assert.NoError(t, cl.Close())
}

func TestRoomBroadcast(t *testing.T) {
	room, url := startRoom(t)
	reader, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer reader.Close()

	msg, err := json.Marshal(Telemetry{T: 2})
	require.NoError(t, err)
	got := receive(t, listen(reader), func() { assert.True(t, room.Broadcast(msg)) })
	assert.Equal(t, 2.0, got.T)
}

func TestBroadcastAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	room := NewRoom()
	stopped := make(chan struct{})
	go func() {
		room.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped
	assert.False(t, room.Broadcast([]byte("late")))
}

func TestNewTelemetry(t *testing.T) {
	nav := ahrs.NavState{Attitude: ahrs.FromEuler(0, 0, 90*ahrs.Deg), Vel: [3]float64{0, 0, -3}, Pos: [3]float64{1, 2, -40}}
	vars := make([]float64, ahrs.NavStates)
	for i := range vars {
		vars[i] = 0.01
	}
	vars[ahrs.IdxPosD] = math.Inf(1)
	ev := flightphase.Event{Kind: flightphase.Apogee, From: flightphase.FreeFlight, To: flightphase.FreeFall, T: 12, Altitude: 40}
	tel := NewTelemetry(flight.Output{
		T: 12, Nav: nav, Altitude: 40, ClimbRate: 3, Variances: vars,
		Phase: flightphase.FreeFall, Event: &ev, CorrectErr: ekf.ErrSingular,
	})

	assert.Equal(t, "FreeFall", tel.Phase)
	assert.InDelta(t, 90, tel.Heading, 1e-6)
	assert.Equal(t, nav.Pos, tel.Pos)
	assert.Greater(t, tel.DHeading, 0.0)
	assert.Equal(t, 0.0, tel.Variances[ahrs.IdxPosD])
	assert.Equal(t, ekf.ErrSingular.Error(), tel.CorrectErr)

	b, err := json.Marshal(tel)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"kind":"Apogee"`)

	var back Telemetry
	require.NoError(t, json.Unmarshal(b, &back))
	require.NotNil(t, back.Event)
	assert.Equal(t, ev, *back.Event)
}

func TestURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8000/telemetry", URL("localhost:8000"))
}

package surface

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-multiroom-go/internal/config"
	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

type lineRecorder struct {
	mu     sync.Mutex
	lines  []string
	bucket string
}

func (l *lineRecorder) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func newInfluxServer(t *testing.T) (*httptest.Server, *lineRecorder) {
	t.Helper()
	rec := &lineRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			rec.mu.Lock()
			rec.bucket = r.URL.Query().Get("bucket")
			rec.lines = append(rec.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
			rec.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server, rec
}

func TestInfluxRecorderWritesPoints(t *testing.T) {
	server, rec := newInfluxServer(t)

	recorder, err := ConnectInflux(config.InfluxConfig{
		URL:    server.URL,
		Token:  "token",
		Org:    "home",
		Bucket: "sonos",
	}, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	recorder.now = func() time.Time { return time.Unix(1700000000, 0) }

	recorder.RecordZone(zone.Snapshot{ZoneID: "RINCON_A", Name: "Kitchen", Power: true, Volume: 20})
	recorder.RecordGlobal(zone.GlobalSnapshot{AnyPowered: true})
	recorder.Flush()

	require.Eventually(t, func() bool { return len(rec.Lines()) == 2 }, 2*time.Second, 10*time.Millisecond)
	lines := rec.Lines()
	require.True(t, strings.HasPrefix(lines[0], "zone_state,zone_id=RINCON_A,zone_name=Kitchen "), lines[0])
	require.Contains(t, lines[0], "volume=20i")
	require.Contains(t, lines[0], "power=true")
	require.True(t, strings.HasPrefix(lines[1], "control_state "), lines[1])
	require.Contains(t, lines[1], "any_powered=true")

	rec.mu.Lock()
	require.Equal(t, "sonos", rec.bucket)
	rec.mu.Unlock()

	recorder.Close()
}

func TestInfluxRecorderCloseStopsErrorDrain(t *testing.T) {
	server, _ := newInfluxServer(t)

	recorder, err := ConnectInflux(config.InfluxConfig{URL: server.URL, Token: "t", Org: "o", Bucket: "b"}, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	recorder.Close()

	select {
	case <-recorder.drained:
	default:
		t.Fatal("error drain still running after Close")
	}
}

func TestConnectInfluxFailsWhenUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := ConnectInflux(config.InfluxConfig{URL: url, Token: "t", Org: "o", Bucket: "b"}, nil)
	require.ErrorIs(t, err, ErrInfluxConnect)
}

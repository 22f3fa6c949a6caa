package zone

import (
	"context"
	"sync"
)

type zoneFetch struct {
	zoneID    string
	volume    *int
	mute      *bool
	transport *TransportState
	track     *TrackRef
}

type syncResult struct {
	reason   string
	epoch    uint64
	zones    []*zoneFetch
	topology []GroupTopology
	failures int
}

// requestSync starts a GlobalSync unless one is running, commands are
// pending or a remote volume window is open. Dropped requests are not
// queued. It reports whether a sync started.
func (e *Engine) requestSync(reason string) bool {
	switch {
	case e.syncing:
		e.logger.Printf("SYNC: %s: already running, dropped", reason)
		return false
	case e.guards.pending > 0:
		e.logger.Printf("SYNC: %s: %d operations pending, dropped", reason, e.guards.pending)
		return false
	case e.anyLocked():
		e.logger.Printf("SYNC: %s: remote volume window open, dropped", reason)
		return false
	case e.device == nil:
		return false
	}

	e.syncing = true
	epoch := e.guards.epoch
	ids := append([]string(nil), e.model.order...)
	e.run(func() {
		result := e.fetchAll(ids)
		result.reason = reason
		result.epoch = epoch
		e.post(syncCompleted{result: result})
	})
	return true
}

// fetchAll queries every zone concurrently. Failed fields stay nil.
func (e *Engine) fetchAll(ids []string) *syncResult {
	result := &syncResult{zones: make([]*zoneFetch, len(ids))}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	fail := func(what, zoneID string, err error) {
		mu.Lock()
		result.failures++
		mu.Unlock()
		e.logger.Printf("SYNC: %s %s failed: %v", what, zoneID, err)
	}
	fetch := func(fn func(ctx context.Context)) {
		wg.Add(1)
		e.run(func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), e.opts.CallTimeout)
			defer cancel()
			fn(ctx)
		})
	}

	for i, id := range ids {
		f := &zoneFetch{zoneID: id}
		result.zones[i] = f
		fetch(func(ctx context.Context) {
			v, err := e.device.GetVolume(ctx, id)
			if err != nil {
				fail("volume", id, err)
				return
			}
			f.volume = &v
		})
		fetch(func(ctx context.Context) {
			m, err := e.device.GetMute(ctx, id)
			if err != nil {
				fail("mute", id, err)
				return
			}
			f.mute = &m
		})
		fetch(func(ctx context.Context) {
			s, err := e.device.GetTransportState(ctx, id)
			if err != nil {
				fail("transport", id, err)
				return
			}
			f.transport = &s
		})
		fetch(func(ctx context.Context) {
			t, err := e.device.GetCurrentTrackRef(ctx, id)
			if err != nil {
				fail("track", id, err)
				return
			}
			f.track = &t
		})
	}
	fetch(func(ctx context.Context) {
		topology, err := e.device.GetGroupTopology(ctx)
		if err != nil {
			fail("topology", "", err)
			return
		}
		result.topology = topology
	})

	wg.Wait()
	return result
}

// applySync folds fetched device state into the model. Results fetched
// while a command ran or a remote window opened are discarded and the
// sync is retried.
func (e *Engine) applySync(result *syncResult) {
	e.syncing = false
	if result.epoch != e.guards.epoch {
		e.logger.Printf("SYNC: %s: model changed during fetch, discarding", result.reason)
		e.requestSync("retry after " + result.reason)
		return
	}

	topologyFollow := followFromTopology(result.topology)
	for _, f := range result.zones {
		z := e.model.Zone(f.zoneID)
		if z == nil {
			continue
		}
		if f.volume != nil && z.VolumeLockDepth == 0 {
			z.DeviceVolume = max(*f.volume, z.MinVolume)
			z.setVolume(z.DeviceVolume)
		}
		if f.mute != nil {
			z.Mute = *f.mute
		}
		if f.transport != nil {
			z.TransportState = *f.transport
		}
		if f.track != nil {
			z.CurrentTrackRef = f.track.URI
			z.FollowRef = f.track.FollowID
			z.TVInput = z.Capabilities.HomeTheater && f.track.TVInput
		} else if result.topology != nil {
			z.FollowRef = topologyFollow[z.ID]
		}
	}

	ResolveGroups(e.model.All())
	for _, z := range e.model.All() {
		e.pushZone(z)
	}
	e.pushGlobal()
	if result.failures > 0 {
		e.logger.Printf("SYNC: %s: completed with %d failed fetches", result.reason, result.failures)
	}
}

package scene

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
)

// newTestScene builds a Scene without its GL threads; object management
// and messaging are fully usable headless.
func newTestScene(t *testing.T, name string, master bool) *Scene {
	t.Helper()
	s, err := New(name, master, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// pumpTasks drains a scene's task queue in the background.
func pumpTasks(s *Scene) func() {
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				s.RunTasks()
				time.Sleep(time.Millisecond)
			}
		}
	}()
	return func() { close(stop) }
}

func TestWindowAttributeRoundTrip(t *testing.T) {
	s := newTestScene(t, "rt_scene", true)

	obj := s.AddObjectOfType("window", "window")
	require.NotNil(t, obj)

	require.True(t, s.Set("window", "position", common.Values{common.I(10), common.I(20)}))
	got := s.Get("window", "position")
	require.Len(t, got, 2)
	assert.Equal(t, int64(10), got[0].AsInt())
	assert.Equal(t, int64(20), got[1].AsInt())

	size := s.Get("window", "size")
	require.Len(t, size, 2)
	assert.Greater(t, size[0].AsInt(), int64(0))
	assert.Greater(t, size[1].AsInt(), int64(0))
}

func TestUnknownTypeYieldsNil(t *testing.T) {
	s := newTestScene(t, "nil_scene", true)
	assert.Nil(t, s.AddObjectOfType("holodeck", "h1"))
}

func TestObjectNamesUnique(t *testing.T) {
	s := newTestScene(t, "uniq_scene", true)
	require.NotNil(t, s.AddObjectOfType("image", "img1"))
	assert.Nil(t, s.AddObjectOfType("image", "img1"))

	// Registry invariant: looked-up name matches the object's name.
	obj, ok := s.GetObject("img1")
	require.True(t, ok)
	assert.Equal(t, "img1", obj.Name())
}

func TestGhostMirroring(t *testing.T) {
	master := newTestScene(t, "ghost_master", true)
	worker := newTestScene(t, "ghost_worker", false)
	require.NoError(t, master.ConnectTo("ghost_worker", "inproc://ghost_worker"))
	require.NoError(t, worker.ConnectTo("ghost_master", "inproc://ghost_master"))
	stop := pumpTasks(worker)
	defer stop()

	// The worker owns the camera, the master sees a ghost twin with the
	// same name.
	require.NotNil(t, worker.AddObjectOfType("camera", "cam1"))
	ghost := master.AddGhost("camera", "cam1")
	require.NotNil(t, ghost)
	assert.True(t, ghost.Ghost())
	assert.Equal(t, "cam1", ghost.Name())

	// Setting an attribute on the ghost applies locally and is forwarded
	// to the owner.
	require.True(t, master.Set("cam1", "fov", common.Values{common.R(45.0)}))
	local := master.Get("cam1", "fov")
	require.Len(t, local, 1)
	assert.InDelta(t, 45.0, local[0].AsFloat(), 1e-3)

	assert.Eventually(t, func() bool {
		remote := worker.Get("cam1", "fov")
		return len(remote) == 1 && remote[0].AsFloat() > 44 && remote[0].AsFloat() < 46
	}, time.Second, 5*time.Millisecond)
}

func TestGhostSkipsNonGhostableTypes(t *testing.T) {
	s := newTestScene(t, "ghostable_scene", true)
	assert.Nil(t, s.AddGhost("blender", "b1"))
	assert.NotNil(t, s.AddGhost("camera", "c1"))
}

func TestGhostObjectsSkippedByRenderList(t *testing.T) {
	s := newTestScene(t, "renderlist_scene", true)
	require.NotNil(t, s.AddObjectOfType("camera", "cam_live"))
	ghost := s.AddGhost("camera", "cam_ghost")
	require.NotNil(t, ghost)

	names := map[string]bool{}
	for _, obj := range s.renderables() {
		names[obj.Name()] = true
	}
	assert.True(t, names["cam_live"])
	assert.False(t, names["cam_ghost"])
}

func TestRenderListPriorityBands(t *testing.T) {
	s := newTestScene(t, "bands_scene", true)
	require.NotNil(t, s.AddObjectOfType("window", "win1"))
	require.NotNil(t, s.AddObjectOfType("camera", "cam1"))
	require.NotNil(t, s.AddObjectOfType("image", "img1"))
	require.NotNil(t, s.AddObjectOfType("camera", "cam2"))

	list := s.renderables()
	var priorities []graph.Priority
	var names []string
	for _, obj := range list {
		priorities = append(priorities, obj.Priority())
		names = append(names, obj.Name())
	}
	for i := 1; i < len(priorities); i++ {
		assert.LessOrEqual(t, priorities[i-1], priorities[i])
	}
	// Within the camera band, insertion order is stable.
	camIdx := []int{}
	for i, n := range names {
		if n == "cam1" || n == "cam2" {
			camIdx = append(camIdx, i)
		}
	}
	require.Len(t, camIdx, 2)
	assert.Equal(t, "cam1", names[camIdx[0]])
	assert.Equal(t, "cam2", names[camIdx[1]])
}

func TestBlendingHandshakeAttributes(t *testing.T) {
	// On the master there is no waiter; the handshake attributes must
	// still create the blender and forward the signal.
	s := newTestScene(t, "handshake_scene", true)
	require.True(t, s.SetAttribute("prepareBlending", common.Values{}))
	require.NotNil(t, s.Blender())

	require.True(t, s.SetAttribute("blendingUpdated", common.Values{}))
	assert.True(t, s.Blender().WaitUpdated(time.Second))

	// Without a signal, the wait times out and the scene proceeds.
	assert.False(t, s.Blender().WaitUpdated(10*time.Millisecond))
}

func TestQuitAttributeStopsScene(t *testing.T) {
	s := newTestScene(t, "quit_scene", true)
	require.True(t, s.SetAttribute("quit", common.Values{}))
	assert.True(t, s.Quitting())
}

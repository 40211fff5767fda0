package world

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/geometry"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/image"
	"github.com/splashmapping/splash/engine/scene"
)

// pumpScene drains a scene's task queue in the background, standing in
// for its render thread.
func pumpScene(s *scene.Scene) func() {
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

func TestBufferBroadcast(t *testing.T) {
	w, err := New(zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	s, err := scene.New("bcast_scene", true, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	stop := pumpScene(s)
	defer stop()

	require.NoError(t, w.ConnectTo("bcast_scene", "inproc://bcast_scene"))
	require.NoError(t, s.ConnectTo("world", "inproc://world"))

	// The world owns the image; the scene holds its replicated twin.
	worldImg := image.New(w)
	require.True(t, w.AddObject("img1", worldImg))
	require.NotNil(t, s.AddObjectOfType("image", "img1"))
	w.destMu.Lock()
	w.destinations["img1"] = []string{"bcast_scene"}
	w.destMu.Unlock()

	spec, data := image.Pattern(16, 16)
	worldImg.SetImage(spec, data)
	ts := worldImg.Timestamp()

	// The replication tick pushes the serialized frame; the scene's twin
	// observes the new timestamp and byte-equal content.
	w.replicateBuffers()

	sceneObj, ok := s.GetObject("img1")
	require.True(t, ok)
	sceneImg := sceneObj.(*image.Image)

	assert.Eventually(t, func() bool {
		return sceneImg.Timestamp() == ts
	}, 200*time.Millisecond, 2*time.Millisecond)
	_, gotData := sceneImg.PixelData()
	assert.Equal(t, data, gotData)

	// Nothing new: the next tick pushes nothing and content is stable.
	w.replicateBuffers()
	assert.Equal(t, ts, sceneImg.Timestamp())
}

func TestApplyConfigBuildsSceneGraph(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{
        "scenes": [{"name": "cfg_scene", "address": "localhost"}],
        "cfg_scene": {
            "objects": {
                "cam1": {"type": "camera", "fov": 45},
                "obj1": {"type": "object"},
                "img1": {"type": "image"}
            },
            "links": [["obj1", "cam1"]]
        }
    }`))
	require.NoError(t, err)

	s, err := scene.New("cfg_scene", true, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	stop := pumpScene(s)
	defer stop()
	require.NoError(t, s.ConnectTo("world", "inproc://world"))

	w, err := New(zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.ApplyConfig(cfg, ""))
	assert.Equal(t, "cfg_scene", w.MasterScene())

	// The scene received its objects and links.
	require.Eventually(t, func() bool {
		_, okCam := s.GetObject("cam1")
		_, okObj := s.GetObject("obj1")
		return okCam && okObj
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		fov := s.Get("cam1", "fov")
		return len(fov) == 1 && fov[0].AsFloat() > 44 && fov[0].AsFloat() < 46
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		cam, ok := s.GetObject("cam1")
		return ok && len(cam.LinkedObjects()) == 1
	}, time.Second, 5*time.Millisecond)

	// Image buffers get a world-side twin for replication.
	_, ok := w.GetObject("img1")
	assert.True(t, ok)
}

// TestStarTopologyRelay drives the deployment the binaries actually
// build: Scenes connect only to the World, which must relay ghost
// attribute sets, the OtherScenes sentinel and blending buffers between
// them.
func TestStarTopologyRelay(t *testing.T) {
	master, err := scene.New("star_master", true, zerolog.Nop())
	require.NoError(t, err)
	defer master.Close()
	worker, err := scene.New("star_worker", false, zerolog.Nop())
	require.NoError(t, err)
	defer worker.Close()

	stopMaster := pumpScene(master)
	defer stopMaster()
	stopWorker := pumpScene(worker)
	defer stopWorker()

	w, err := New(zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	// Star topology: the Scenes reach the World only; ApplyConfig wires
	// the World to the Scenes.
	require.NoError(t, master.ConnectTo("world", "inproc://world"))
	require.NoError(t, worker.ConnectTo("world", "inproc://world"))

	cfg, err := ParseConfig([]byte(`{
        "scenes": [
            {"name": "star_master", "address": "localhost"},
            {"name": "star_worker", "address": "localhost"}
        ],
        "star_master": {"objects": {}, "links": []},
        "star_worker": {
            "objects": {
                "mesh1": {"type": "mesh"},
                "obj1": {"type": "object"},
                "cam1": {"type": "camera"}
            },
            "links": [["mesh1", "obj1"], ["obj1", "cam1"]]
        }
    }`))
	require.NoError(t, err)
	require.NoError(t, w.ApplyConfig(cfg, ""))

	// The worker owns the graph; the master observes ghost twins and the
	// implicitly created geometry on both sides.
	require.Eventually(t, func() bool {
		_, okCam := worker.GetObject("cam1")
		_, okGeom := worker.GetObject("obj1_geom")
		return okCam && okGeom
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		ghost, ok := master.GetObject("cam1")
		return ok && ghost.Ghost()
	}, time.Second, 5*time.Millisecond)

	// A ghost attribute set on the master is relayed to the owning Scene
	// through the World.
	require.True(t, master.Set("cam1", "fov", common.Values{common.R(45.0)}))
	assert.Eventually(t, func() bool {
		fov := worker.Get("cam1", "fov")
		return len(fov) == 1 && fov[0].AsFloat() > 44 && fov[0].AsFloat() < 46
	}, time.Second, 5*time.Millisecond)

	// The OtherScenes sentinel reaches the worker but skips its sender.
	master.SendMessage(graph.OtherScenes, "pause", common.Values{common.I(1)})
	assert.Eventually(t, func() bool {
		paused := worker.Get("star_worker", "pause")
		return len(paused) == 1 && paused[0].AsBool()
	}, time.Second, 5*time.Millisecond)
	masterPaused := master.Get("star_master", "pause")
	require.Len(t, masterPaused, 1)
	assert.False(t, masterPaused[0].AsBool())

	// A blending buffer pushed to AllPeers is relayed to the worker's
	// geometry of the same name.
	require.Eventually(t, func() bool {
		_, ok := master.GetObject("obj1_geom")
		return ok
	}, time.Second, 5*time.Millisecond)
	masterGeomObj, _ := master.GetObject("obj1_geom")
	masterGeom := masterGeomObj.(*geometry.Geometry)
	identity := make([]float32, 16)
	identity[0], identity[5], identity[10], identity[15] = 1, 1, 1, 1
	masterGeom.AddBlendingContribution(identity)
	require.NoError(t, master.SendBuffer(graph.AllPeers, masterGeom.Serialize()))

	assert.Eventually(t, func() bool {
		obj, ok := worker.GetObject("obj1_geom")
		if !ok {
			return false
		}
		data := obj.(*geometry.Geometry).AlternativeData()
		return data.VertexCount() > 0 && data.Annexe[0] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestApplyConfigRejectsEmptySceneList(t *testing.T) {
	w, err := New(zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	cfg := &Config{World: map[string]interface{}{}, Defs: map[string]SceneDef{}}
	assert.Error(t, w.ApplyConfig(cfg, ""))
}

func TestAttributeValuesKeepsDeclaredTags(t *testing.T) {
	vals := AttributeValues(map[string]interface{}{"rate": 60.0})
	require.Len(t, vals, 2)
	assert.Equal(t, "rate", vals[0].AsString())
	assert.Equal(t, int64(60), vals[1].AsInt())
	assert.Equal(t, common.ValueInteger, vals[1].Type())
}

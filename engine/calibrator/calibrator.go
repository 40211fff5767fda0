// Package calibrator implements the color calibration loop: it drives an
// external camera through HDR bracketing to recover per-projector
// response curves and white-balance matrices, then writes the resulting
// LUTs back to the cameras.
package calibrator

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/image"
)

// Calibration constants; the attribute setters clamp to the documented
// minima.
const (
	MaxShutterspeedIterations = 10
	ShutterspeedStep          = 1.5

	MinColorCurveSamples = 3

	DefaultColorCurveSamples      = 10
	DefaultColorLUTSize           = 256
	DefaultDisplayDetectionThresh = 1.0
	DefaultImagePerHDR            = 9
	DefaultHdrStep                = 0.33
	DefaultMinimumROIArea         = 0.005
	CaptureSpawnTimeout           = time.Second

	targetExposureLow  = 100.0
	targetExposureHigh = 160.0
)

// errSolverFailed flags an ill-conditioned CRF solve.
var errSolverFailed = errors.New("calibrator: response solve failed")

// ErrCalibration flags an aborted run; previously stored calibration is
// preserved.
var ErrCalibration = errors.New("calibrator: calibration failed")

// Calibrator runs on the master Scene as a single asynchronous task.
type Calibrator struct {
	graph.BaseObject

	captureDevice *image.Image

	colorCurveSamples int
	colorLUTSize      int
	displayDetection  float64
	imagePerHDR       int
	hdrStep           float64
	equalizeMethod    int
	minimumROIArea    float64

	response *crf
	params   []*calibrationParams

	running atomic.Bool
	pool    worker.DynamicWorkerPool
	taskID  int
}

var _ graph.Object = (*Calibrator)(nil)

// New creates a Calibrator attached to the master Scene.
func New(rootObj graph.Root) *Calibrator {
	c := &Calibrator{
		colorCurveSamples: DefaultColorCurveSamples,
		colorLUTSize:      DefaultColorLUTSize,
		displayDetection:  DefaultDisplayDetectionThresh,
		imagePerHDR:       DefaultImagePerHDR,
		hdrStep:           DefaultHdrStep,
		minimumROIArea:    DefaultMinimumROIArea,
	}
	c.Init(rootObj, "colorCalibrator", graph.CategoryControl, graph.PriorityNoRender)
	c.pool = worker.NewDynamicWorkerPool(1, 4, time.Second)
	c.registerAttributes()
	return c
}

func (c *Calibrator) registerAttributes() {
	c.AddAttribute("colorSamples", "n", func(args common.Values) bool {
		v := int(args[0].AsInt())
		if v < MinColorCurveSamples {
			v = MinColorCurveSamples
		}
		c.colorCurveSamples = v
		return true
	}, func() common.Values {
		return common.Values{common.I(c.colorCurveSamples)}
	}).Doc("Number of samples taken along each response curve")

	c.AddAttribute("colorLUTSize", "n", func(args common.Values) bool {
		v := int(args[0].AsInt())
		if v < 2 {
			return false
		}
		c.colorLUTSize = v
		return true
	}, func() common.Values {
		return common.Values{common.I(c.colorLUTSize)}
	}).Doc("Number of entries per channel in the computed lookup tables")

	c.AddAttribute("detectionThresholdFactor", "n", func(args common.Values) bool {
		v := args[0].AsFloat()
		if v < 0.5 {
			v = 0.5
		}
		c.displayDetection = v
		return true
	}, func() common.Values {
		return common.Values{common.R(c.displayDetection)}
	}).Doc("Factor applied to the other projectors when detecting a display")

	c.AddAttribute("imagePerHDR", "n", func(args common.Values) bool {
		v := int(args[0].AsInt())
		if v < 1 {
			v = 1
		}
		c.imagePerHDR = v
		return true
	}, func() common.Values {
		return common.Values{common.I(c.imagePerHDR)}
	}).Doc("Number of bracketed captures merged into each HDR image")

	c.AddAttribute("hdrStep", "n", func(args common.Values) bool {
		v := args[0].AsFloat()
		if v < 0.3 {
			v = 0.3
		}
		c.hdrStep = v
		return true
	}, func() common.Values {
		return common.Values{common.R(c.hdrStep)}
	}).Doc("Exposure step between two bracketed captures, in ev")

	c.AddAttribute("equalizeMethod", "n", func(args common.Values) bool {
		v := int(args[0].AsInt())
		if v < 0 || v > 2 {
			return false
		}
		c.equalizeMethod = v
		return true
	}, func() common.Values {
		return common.Values{common.I(c.equalizeMethod)}
	}).Doc("White balance policy: 0 WB only, 1 weakest projector, 2 maximize minimum luminance")

	c.AddAttribute("calibrate", "", func(common.Values) bool {
		c.RunAsync()
		return true
	}, nil).Doc("Start a calibration run").NotSavable()
}

// TryLink accepts the capture device image.
func (c *Calibrator) TryLink(o graph.Object) bool {
	img, ok := o.(*image.Image)
	if !ok {
		return false
	}
	if !c.BaseObject.TryLink(o) {
		return false
	}
	c.captureDevice = img
	return true
}

func (c *Calibrator) TryUnlink(o graph.Object) {
	if c.captureDevice != nil && o != nil && o.Name() == c.captureDevice.Name() {
		c.captureDevice = nil
	}
	c.BaseObject.TryUnlink(o)
}

// RunAsync posts the calibration to the worker pool. A second invocation
// while one is in flight logs a warning and returns.
func (c *Calibrator) RunAsync() {
	if !c.running.CompareAndSwap(false, true) {
		c.Log.Warn().Msg("calibration already running")
		return
	}
	c.taskID++
	c.pool.SubmitTask(worker.Task{
		ID: c.taskID,
		Do: func() (any, error) {
			defer c.running.Store(false)
			if err := c.run(); err != nil {
				c.Log.Warn().Err(err).Msg("calibration aborted")
				return nil, err
			}
			return nil, nil
		},
	})
}

// run executes the full calibration sequence.
func (c *Calibrator) run() error {
	rootObj := c.Root()
	if rootObj == nil {
		return ErrCalibration
	}

	if c.captureDevice == nil {
		// Ask the World to spawn a capture image and wait for the link.
		rootObj.SendMessage(graph.AllPeers, "addCaptureDevice", common.Values{common.S(c.Name())})
		deadline := time.Now().Add(CaptureSpawnTimeout)
		for c.captureDevice == nil && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
		if c.captureDevice == nil {
			return ErrCalibration
		}
	}

	cameras := c.cameraNames()
	if len(cameras) == 0 {
		return ErrCalibration
	}

	// Step 1: correct exposure against a neutral grey background.
	for _, cam := range cameras {
		rootObj.Set(cam, "hide", common.Values{common.I(1)})
		rootObj.Set(cam, "clearColor", common.Values{common.R(0.7), common.R(0.7), common.R(0.7), common.R(1.0)})
		rootObj.Set(cam, "flashBG", common.Values{common.I(1)})
	}
	if c.findCorrectExposure() == 0 {
		c.restoreCameras(cameras)
		return ErrCalibration
	}

	// Step 2: camera response function, once per installation.
	if c.response == nil {
		frames := c.captureBracketed(c.imagePerHDR, c.hdrStep)
		if len(frames) == 0 {
			c.restoreCameras(cameras)
			return ErrCalibration
		}
		if response := solveCRF(frames); response != nil {
			c.response = response
		} else {
			c.Log.Warn().Msg("response solve failed, assuming linear sensor")
			c.response = identityCRF()
		}
	}

	// Steps 3 and 4: per-camera ROI then response curves.
	params := make([]*calibrationParams, 0, len(cameras))
	for _, cam := range cameras {
		p, err := c.calibrateCamera(cam, cameras)
		if err != nil {
			c.restoreCameras(cameras)
			return err
		}
		params = append(params, p)
	}

	// Step 5: invert the curves and equalize the white balances.
	c.computeCalibration(params)

	// Step 6: write back.
	for _, p := range params {
		c.writeBack(p)
	}
	c.restoreCameras(cameras)
	c.params = params
	c.Log.Info().Int("cameras", len(params)).Msg("color calibration updated")
	return nil
}

// cameraNames lists every camera of the installation, ghosts included, in
// registration order.
func (c *Calibrator) cameraNames() []string {
	var out []string
	for _, obj := range c.Root().ObjectsOfType("camera") {
		out = append(out, obj.Name())
	}
	return out
}

func (c *Calibrator) restoreCameras(cameras []string) {
	for _, cam := range cameras {
		c.Root().Set(cam, "hide", common.Values{common.I(0)})
		c.Root().Set(cam, "flashBG", common.Values{common.I(0)})
		c.Root().Set(cam, "clearColor", common.Values{common.R(0.0), common.R(0.0), common.R(0.0), common.R(1.0)})
	}
}

// writeBack pushes one camera's calibration results.
func (c *Calibrator) writeBack(p *calibrationParams) {
	rootObj := c.Root()
	rootObj.Set(p.camName, "colorLUTSize", common.Values{common.I(c.colorLUTSize)})

	lut := make(common.Values, 0, c.colorLUTSize*3)
	for ch := 0; ch < 3; ch++ {
		for _, v := range p.lut[ch] {
			lut = append(lut, common.R(v))
		}
	}
	rootObj.Set(p.camName, "colorLUT", lut)
	rootObj.Set(p.camName, "activateColorLUT", common.Values{common.I(1)})

	mix := make(common.Values, 9)
	for i, v := range p.mix {
		mix[i] = common.R(v)
	}
	rootObj.Set(p.camName, "colorMixMatrix", mix)

	rootObj.Set(p.camName, "colorSamples", common.Values{common.I(c.colorCurveSamples)})
	rootObj.Set(p.camName, "whitePoint", common.Values{
		common.R(p.whitePoint[0]), common.R(p.whitePoint[1]), common.R(p.whitePoint[2])})

	curves := make(common.Values, 0, c.colorCurveSamples*6)
	for s := 0; s < c.colorCurveSamples && s < len(p.curves[0]); s++ {
		for ch := 0; ch < 3; ch++ {
			curves = append(curves, common.R(p.curves[ch][s].in), common.R(p.curves[ch][s].out[ch]))
		}
	}
	rootObj.Set(p.camName, "colorCurves", curves)

	rootObj.Set(p.camName, "brightness", common.Values{common.R(1.0)})
	rootObj.Set(p.camName, "colorTemperature", common.Values{common.R(6500.0)})
}

// Destroy waits for any in-flight run, then the base object.
func (c *Calibrator) Destroy() {
	for c.running.Load() {
		time.Sleep(10 * time.Millisecond)
	}
	c.BaseObject.Destroy()
}

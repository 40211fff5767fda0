package scene

import (
	"runtime"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/splashmapping/splash/engine/gfx"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/texture"
	"github.com/splashmapping/splash/engine/window"
)

// renderLoop drives the priority-ordered update+draw until quit.
func (s *Scene) renderLoop() {
	for s.isRunning.Load() && !s.Quitting() {
		frameStart := time.Now()

		s.RunTasks()
		s.RunPeriodicTasks()

		if !s.started.Load() || s.paused.Load() {
			time.Sleep(idleSleep)
			continue
		}

		s.renderFrame()
		glfw.PollEvents()
		s.prof.Tick()

		if s.swapInterval == 0 {
			if remaining := s.frameDuration - time.Since(frameStart); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
	s.isRunning.Store(false)
}

// renderFrame runs one §scheduler pass: priority bands in ascending
// order, the texture lock held over the camera band, the camera-drawn
// fence issued when leaving it, windows drawn then swapped together.
func (s *Scene) renderFrame() {
	objects := s.renderables()

	textureLocked := false
	var windows []*window.Window

	for _, obj := range objects {
		p := obj.Priority()

		if !textureLocked && p >= graph.PriorityBlending && p < graph.PriorityPostCamera {
			// All textures the cameras sample from must be committed
			// before the band starts.
			s.textureLock.Lock()
			textureLocked = true
			s.textureUploaded.Wait()
		}
		if textureLocked && p >= graph.PriorityPostCamera {
			s.cameraDrawn.Insert()
			s.textureLock.Unlock()
			textureLocked = false
		}

		bandStart := time.Now()
		obj.Update()
		if obj.WasUpdated() &&
			(obj.Category() == graph.CategoryMesh || obj.Category() == graph.CategoryImage) {
			s.AddTask(s.scheduleBlendingRecompute)
			obj.SetUpdated(false)
			s.NotifyBufferUpdated()
		}

		if win, ok := obj.(*window.Window); ok {
			win.RenderWithVsync(len(windows) == 0)
			windows = append(windows, win)
		} else {
			obj.Render()
		}
		s.prof.Measure(obj.Type(), bandStart)
	}

	if textureLocked {
		s.cameraDrawn.Insert()
		s.textureLock.Unlock()
	}

	for _, win := range windows {
		win.Swap()
		if win.ShouldClose() {
			s.Stop()
		}
	}
	s.mainWindow.MakeContextCurrent()
}

// renderables returns the priority-ordered object list; NO_RENDER and
// ghost objects are skipped, insertion order is stable within a band.
func (s *Scene) renderables() []graph.Object {
	all := s.Objects()
	out := make([]graph.Object, 0, len(all))
	for _, obj := range all {
		if obj.Priority() == graph.PriorityNoRender || obj.Ghost() {
			continue
		}
		out = append(out, obj)
	}
	sortStableByPriority(out)
	return out
}

// scheduleBlendingRecompute re-arms the blender after a media update.
func (s *Scene) scheduleBlendingRecompute() {
	if s.blenderObj != nil {
		s.blenderObj.ScheduleRecompute()
	}
}

// textureUploadLoop is the texture-upload thread: it waits for the
// buffer-updated signal, contends on the texture lock with the render
// thread's camera band, pushes pending image content through the PBO
// rings and issues the texture-uploaded fence.
func (s *Scene) textureUploadLoop() {
	defer s.uploadDone.Done()
	runtime.LockOSThread()

	s.uploadWindow.MakeContextCurrent()
	if err := gfx.Init(); err != nil {
		s.log.Error().Err(err).Msg("upload context init failed")
		return
	}

	for s.isRunning.Load() {
		select {
		case <-s.bufferUpdatedCh:
		case <-time.After(uploadWakeInterval):
		}
		if !s.isRunning.Load() {
			return
		}

		s.textureLock.Lock()

		// Previously issued draws must finish sampling before any texture
		// storage is touched.
		s.cameraDrawn.Wait()

		// Snapshot the texture set atomically; the flag is released
		// before any GL work so object creation never stalls on uploads.
		if !s.objectsUpdating.CompareAndSwap(false, true) {
			s.textureLock.Unlock()
			continue
		}
		var pending []*texture.TextureImage
		for _, obj := range s.ObjectsOfType("texture_image") {
			if tex, ok := obj.(*texture.TextureImage); ok && tex.NeedsUpload() {
				pending = append(pending, tex)
			}
		}
		s.objectsUpdating.Store(false)

		for _, tex := range pending {
			if err := tex.UploadIfNeeded(); err != nil {
				s.log.Warn().Err(err).Str("object", tex.Name()).Msg("texture upload failed")
			}
		}

		s.textureUploaded.Insert()
		s.textureLock.Unlock()
		gfx.Flush()
	}
}

// sortStableByPriority orders by priority band, stable within bands.
func sortStableByPriority(objects []graph.Object) {
	for i := 1; i < len(objects); i++ {
		for j := i; j > 0 && objects[j].Priority() < objects[j-1].Priority(); j-- {
			objects[j], objects[j-1] = objects[j-1], objects[j]
		}
	}
}

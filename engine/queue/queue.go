// Package queue implements the timed playlist object: an ordered list of
// media entries played through one underlying source object, looping when
// asked to.
package queue

import (
	"time"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
)

// entry is one playlist element. Times are in seconds from playlist
// start.
type entry struct {
	typeName string
	file     string
	start    float64
	stop     float64
}

// Queue sequences entries over a single source object, switching its
// "file" attribute as time passes.
type Queue struct {
	graph.BaseObject

	playlist []entry
	loop     bool
	paused   bool

	sourceName string

	startedAt time.Time
	seekTo    float64
	current   int
}

var _ graph.Object = (*Queue)(nil)

// New creates a Queue attached to the root.
func New(rootObj graph.Root) *Queue {
	q := &Queue{current: -1}
	q.Init(rootObj, "queue", graph.CategoryMixer, graph.PriorityMedia)
	q.registerAttributes()
	q.startedAt = time.Now()
	return q
}

func (q *Queue) registerAttributes() {
	q.AddAttribute("playlist", "", func(args common.Values) bool {
		if len(args)%4 != 0 {
			return false
		}
		playlist := make([]entry, 0, len(args)/4)
		for i := 0; i+3 < len(args); i += 4 {
			e := entry{
				typeName: args[i].AsString(),
				file:     args[i+1].AsString(),
				start:    args[i+2].AsFloat(),
				stop:     args[i+3].AsFloat(),
			}
			if e.stop <= e.start {
				return false
			}
			playlist = append(playlist, e)
		}
		q.playlist = playlist
		q.current = -1
		return true
	}, func() common.Values {
		out := make(common.Values, 0, len(q.playlist)*4)
		for _, e := range q.playlist {
			out = append(out, common.S(e.typeName), common.S(e.file),
				common.R(e.start), common.R(e.stop))
		}
		return out
	}).Doc("Playlist entries, a flat list of (type, file, start, stop) tuples")

	q.AddAttribute("loop", "n", func(args common.Values) bool {
		q.loop = args[0].AsBool()
		return true
	}, func() common.Values {
		return common.Values{common.B(q.loop)}
	}).Doc("Loop the playlist when it reaches its end")

	q.AddAttribute("pause", "n", func(args common.Values) bool {
		q.paused = args[0].AsBool()
		return true
	}, func() common.Values {
		return common.Values{common.B(q.paused)}
	}).Doc("Pause the playlist clock").NotSavable()

	q.AddAttribute("source", "s", func(args common.Values) bool {
		q.sourceName = args[0].AsString()
		return true
	}, func() common.Values {
		return common.Values{common.S(q.sourceName)}
	}).Doc("Name of the object the playlist plays through")

	q.AddAttribute("seek", "n", func(args common.Values) bool {
		v := args[0].AsFloat()
		if v < 0 {
			return false
		}
		q.seekTo = v
		q.startedAt = time.Now()
		q.current = -1
		return true
	}, func() common.Values {
		return common.Values{common.R(q.elapsed())}
	}).Doc("Seek to the given playlist time, in seconds").NotSavable()
}

// Duration returns the total playlist duration, in seconds.
func (q *Queue) Duration() float64 {
	end := 0.0
	for _, e := range q.playlist {
		if e.stop > end {
			end = e.stop
		}
	}
	return end
}

func (q *Queue) elapsed() float64 {
	if q.paused {
		return q.seekTo
	}
	return q.seekTo + time.Since(q.startedAt).Seconds()
}

// Update advances the playlist clock and switches the source object when
// the active entry changes.
func (q *Queue) Update() {
	if len(q.playlist) == 0 || q.paused || q.sourceName == "" {
		return
	}

	t := q.elapsed()
	total := q.Duration()
	if q.loop && total > 0 && t >= total {
		loops := int(t / total)
		q.seekTo -= float64(loops) * total
		t = q.elapsed()
	}

	active := -1
	for i, e := range q.playlist {
		if t >= e.start && t < e.stop {
			active = i
			break
		}
	}
	if active == q.current {
		return
	}
	q.current = active
	if active < 0 {
		return
	}

	e := q.playlist[active]
	if !q.Root().Set(q.sourceName, "file", common.Values{common.S(e.file)}) {
		q.Log.Warn().Str("file", e.file).Msg("queue source rejected entry")
	}
}

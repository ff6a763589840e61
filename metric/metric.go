// Package metric publishes counters of psynth components through expvar.
package metric

import (
	"expvar"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/psychosynth/psynth/signal"
)

const componentsLabel = "psynth.components"

const (
	// BlockCounter measures number of processed blocks.
	BlockCounter = "Blocks"
	// FrameCounter measures number of processed frames.
	FrameCounter = "Frames"
	// XrunCounter counts recovered device under-runs and over-runs.
	XrunCounter = "Xruns"
	// DropCounter counts dropped blocks.
	DropCounter = "Drops"
	// LatencyCounter measures latency between processing calls.
	LatencyCounter = "Latency"
	// DurationCounter counts what's the duration of processed signal.
	DurationCounter = "Duration"
	// ComponentCounter counts number of measured components.
	ComponentCounter = "Components"
)

var (
	components = metrics{
		m: make(map[string]metric),
	}

	counters = []string{
		BlockCounter,
		FrameCounter,
		XrunCounter,
		DropCounter,
		LatencyCounter,
		DurationCounter,
		ComponentCounter,
	}
)

// Get metrics values for provided component type.
func Get(component any) map[string]string {
	return getCounters(getType(component))
}

// GetAll returns counters for all measured components.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	components.Lock()
	defer components.Unlock()
	for component := range components.m {
		m[component] = getCounters(component)
	}
	return m
}

func getCounters(componentType string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(componentType, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// ResetFunc returns new Measure closure. This closure is needed to postpone
// metrics capture until component is actually running.
type ResetFunc func() MeasureFunc

// MeasureFunc captures metrics when block is processed.
type MeasureFunc func(frames int64)

// Meter creates new meter closure to capture component counters.
func Meter(component any, sampleRate int) ResetFunc {
	metric := components.get(getType(component))
	metric.components.Add(1)
	return func() MeasureFunc {
		calledAt := time.Now()
		var (
			blockSize     int64
			blockDuration time.Duration
		)
		return func(frames int64) {
			metric.latency.set(time.Since(calledAt))
			metric.blocks.Add(1)
			metric.frames.Add(frames)
			// recalculate block duration only when block size has changed
			if blockSize != frames {
				blockSize = frames
				blockDuration = signal.DurationOf(sampleRate, frames)
			}
			metric.duration.add(blockDuration)
			calledAt = time.Now()
		}
	}
}

// Xrun increments xrun counter of the component type.
func Xrun(component any) {
	components.get(getType(component)).xruns.Add(1)
}

// Drop increments drop counter of the component type.
func Drop(component any) {
	components.get(getType(component)).drops.Add(1)
}

type metrics struct {
	sync.Mutex
	m map[string]metric
}

func (m *metrics) get(componentType string) metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[componentType]; ok {
		return metric
	}
	metric := newMetric(componentType)
	m.m[componentType] = metric
	return metric
}

type metric struct {
	key        string
	components *expvar.Int
	blocks     *expvar.Int
	frames     *expvar.Int
	xruns      *expvar.Int
	drops      *expvar.Int
	latency    *duration
	duration   *duration
}

func newMetric(componentType string) metric {
	m := metric{
		key:        componentType,
		components: expvar.NewInt(key(componentType, ComponentCounter)),
		blocks:     expvar.NewInt(key(componentType, BlockCounter)),
		frames:     expvar.NewInt(key(componentType, FrameCounter)),
		xruns:      expvar.NewInt(key(componentType, XrunCounter)),
		drops:      expvar.NewInt(key(componentType, DropCounter)),
		latency:    &duration{},
		duration:   &duration{},
	}
	expvar.Publish(key(componentType, LatencyCounter), m.latency)
	expvar.Publish(key(componentType, DurationCounter), m.duration)
	return m
}

func key(componentType, counter string) string {
	return fmt.Sprintf("%s.%s.%s", componentsLabel, componentType, counter)
}

func getType(component any) string {
	rv := reflect.ValueOf(component)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	return rv.Type().String()
}

// duration allows to format time.Duration metric values.
type duration struct {
	d atomic.Int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%v", time.Duration(v.d.Load()))
}

func (v *duration) add(delta time.Duration) {
	v.d.Add(int64(delta))
}

func (v *duration) set(value time.Duration) {
	v.d.Store(int64(value))
}

/*
Package psynth is a modular real-time audio synthesis engine.

Concept

The engine processes a graph of nodes in fixed-size blocks. Nodes expose
typed ports and controls, they are organized into patches. Patches are
nodes too, so they can be nested.

    Source - the origin of signal, e.g. oscillator or sampler;
    Processor - the manipulator of the signal, e.g. filter or mixer;
    Sink - the destination of signal, e.g. audio output.

Every block, the processor pulls the graph from its sinks. Each node is
computed at most once per block, regardless of how many consumers it has.

Execution domains

Processing happens in the real-time domain, usually the goroutine of the
audio device. It must not block, allocate or wait for other goroutines.
The user domain builds and mutates the graph. Blocking work, like file
loading, is done in the async domain by the worker goroutine of the
processor.

Domains never share the mutable state directly. Mutations are pushed as
events into the buffer of the domain that owns the state:

    p := psynth.NewProcessor(ctx, signal.DefaultFormat)
    n, _ := registry.Create("oscillator", ctx, p.Format())
    p.Root().Add(n)
    param, _ := n.Param("frequency")
    param.Set(440.0) // visible to the real-time domain after next block

Devices

Sinks that drive audio devices implement graph.Starter. Processor starts
them in Start and stops them in Stop. Device goroutine calls
RTRequestProcess every time it needs the next block.

The user domain is run by UserUpdate on the goroutine of the caller.
Nodes push results of async work there, e.g. the sampler notifies about
loaded files.
*/
package psynth

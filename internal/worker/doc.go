/*
Package worker implements cross-thread message-passing workers.

# Overview

A worker is an isolated script execution context (see internal/sandbox)
running on its own dedicated OS thread, connected to the main side by a
bidirectional, ordered, asynchronous channel. The pieces:

  - Handle: the main-side proxy (PostMessage, Terminate, callback slots)
  - controller: owns the worker thread and drives the context lifecycle
  - channel: FIFO lanes between the two sides, errors on a separate lane
  - Manager: registry of live workers with creation limits and metrics

# Concurrency model

One thread per worker, fully parallel with the main side and with every
other worker. There is no shared-memory concurrency anywhere in this
package's contract: every payload is copied through the codec at the
channel boundary, so there is structurally nothing to race over.

PostMessage is asynchronous: it returns before the receiver processes
the message. Per-direction ordering is FIFO; the two directions are not
ordered relative to each other, and the error lane is not ordered
relative to the data lane.

# Termination

Termination is cooperative and deferred. Terminate marks the worker and
returns; the controller notices at its next checkpoint, between
messages, never mid-instruction. Messages already enqueued may still be
delivered. Terminating twice is a no-op, and the context's onclose runs
exactly once, strictly after every other callback for that context.
*/
package worker

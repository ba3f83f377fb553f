/*
Package sandbox provides the isolated JavaScript execution context that
backs one worker thread.

# Overview

Each context owns a private goja runtime with a fresh global scope.
Contexts cannot share memory: the only way data enters or leaves is
through the codec boundary, which copies by construction. Within the
context's global scope the worker script sees:

  - postMessage(value): enqueue a value to the owning thread's outbound lane
  - close(): request shutdown at the next checkpoint
  - onmessage / onerror / onclose: single-slot callbacks set by assignment

# Isolation

Node-style escape hatches (require, process, module, exports) are
removed, mirroring the restrictions the host applies to any embedded
script. UI objects (document, window) are trapped: touching them throws
a typed access violation rather than exhibiting platform-dependent
behavior. The Worker constructor exists but always throws — contexts
form a flat hierarchy and can never spawn children.

# Lifecycle

Initializing → Running (after the script loads) → Closing (close() or a
controller terminate) → Closed. onclose is invoked exactly once, during
Shutdown, and is guaranteed to be the last callback the context runs.
An uncaught error is not fatal: it is offered to the context's own
onerror first (a truthy return suppresses it) and otherwise forwarded
to the paired side. The context keeps running either way.

Timers (setTimeout, setInterval) are stubbed to no-ops: a worker context
has no event loop of its own, only the message checkpoint loop.
*/
package sandbox

/*
Package sandbox runs untrusted JavaScript functions against fetched text.

# Overview

Execution is split into two typed steps:

  - Compile turns caller source into a Program. The source must be a single
    expression evaluating to a function, e.g. (body) => body.length.
  - Executor.Invoke evaluates the Program in a fresh goja runtime and calls
    the resulting function with the input text as its only argument.

Runtimes are never reused. Each invocation builds one, strips every global
not named by the configured Capabilities and discards it afterwards.

# Capabilities

The default allowlist exposes the pure built-ins: the basic constructors,
Math, JSON, RegExp, Promise, the collections, the Error family, the numeric
and URI helpers, and undefined, NaN and Infinity. There is no eval,
Function, Proxy, Reflect, console, timer, network or host binding.

# Timeouts

A single deadline bounds every invocation and drives two mechanisms:

 1. Interrupt: the deadline interrupts the VM, which stops synchronous loops
    and promise jobs drained at the end of the call.
 2. Race: a returned promise still pending after the call is observed
    through the intrinsic Promise.prototype.then and raced against the
    deadline.

Both report execution_timeout. The interrupt registration is released on
every return path.

# Results

Return values are serialized with the intrinsic JSON.stringify captured
before user code runs. undefined serializes as null; cyclic structures and
BigInt values fail with execution_failed.
*/
package sandbox

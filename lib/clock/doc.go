// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for code that waits
// on external systems.
//
// The signing client's poll loop and the pipeline's stage timers accept
// a [Clock] instead of calling time.Now, time.After or time.Sleep
// directly. Production wiring uses [Real]; tests use [Fake], which only
// moves when [FakeClock.Advance] is called:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go poller.Wait(ctx, ticket)
//	fake.WaitForTimers(1)
//	fake.Advance(10 * time.Second)
package clock

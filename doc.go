// Package fpguard blocks browser fingerprinting APIs inside a [goja.Runtime].
//
// # Overview
//
// A [Guard] is bound to a single runtime. [Guard.Install] replaces every
// member named by the descriptor catalog with a trap, and pins the screen
// geometry to randomly offset values, before any page script runs:
//
//	guard, err := fpguard.New(vm, fpguard.WithChannel(dispatcher))
//	if err != nil {
//		return err
//	}
//	if err := guard.Install(); err != nil {
//		// a missing API, e.g. no WebRTC, is reported but not fatal
//	}
//
// # Traps
//
// A trapped call never reaches the real implementation. The trap reports a
// [report.Block], naming the category and the URL of the calling script,
// then returns the absorbing value (see [absorb]). Scripts may call it,
// index it, and chain off it indefinitely:
//
//	const data = ctx.getImageData(0, 0, 16, 16); // reported
//	data.data[0].toString();                      // ''
//
// Calls made from evaluated code are attributed to the script that ran the
// eval. Calls that can't be attributed use [WithLocation].
//
// # Screen geometry
//
// Reads of screen.width, screen.height, screen.availWidth, and
// screen.availHeight report a [report.Override] carrying the true value
// minus an offset in [0, 64), and return the absorbing value. See
// [WithoutScreenRandomization].
//
// # Concurrency
//
// Like the runtime, a Guard is not safe for concurrent use. Traps run on the
// runtime's goroutine, and never block: reports are handed to the
// configured [report.Channel], which should be asynchronous, e.g.
// [report.Dispatcher].
package fpguard

// Package bus defines the asynchronous CANopen operation API the gateway drives.
//
// A Bus accepts NMT state changes and SDO object transfers without blocking. The synchronous
// return of each call only tells whether the request was accepted by the driver; the outcome of
// an object transfer is reported later through a Callback, invoked from a goroutine owned by the
// driver. After the callback of a transfer fired, the caller must release the SDO channel of the
// node with CloseTransfer before issuing another transfer to the same node.
//
// Drivers are registered by name in a Registry and selected from the library path given by the
// load# command:
//
//	reg := bus.NewRegistry()
//	reg.Register(virtual.DriverName, virtual.Opener())
//	reg.Register(slcan.DriverName, slcan.Opener())
//
//	b, name, err := reg.Open(ctx, bus.Config{LibraryPath: "libcanfestival_can_virtual.so", ...}, "virtual")
package bus

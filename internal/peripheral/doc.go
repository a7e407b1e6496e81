// Package peripheral implements a simulated Bluetooth Low Energy peripheral that
// serves a radiation-sensor GATT profile.
//
// The package owns the GATT peripheral lifecycle and the telemetry state machine:
//   - Power-state handling (PoweredOn starts advertising, PoweredOff/Resetting stop it)
//   - Publication of the Geiger and Battery services on every advertising start
//   - Subscription-driven periodic notification of radiation readings
//   - Read (battery level) and write (command) request arbitration with
//     protocol-level status responses
//
// The radio itself is reached only through the Transport interface, and
// human-readable events leave through a NotificationSink. All state is owned
// by a single executor goroutine: transport callbacks, UI calls and telemetry
// ticks are posted to it and run one at a time, so no component performs its
// own locking.
package peripheral

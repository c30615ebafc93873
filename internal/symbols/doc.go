// Package symbols holds the shared registry of tracked symbols.
//
// One Set is created at startup and lives until process exit. The control
// plane is the only writer; workers read via Snapshot (a sorted copy)
// or poll Version to cheaply detect that nothing changed since their last
// snapshot.
package symbols

// Package systemd writes service units and drives systemctl.
//
// All operations are idempotent: writing an identical unit skips the
// daemon-reload, stopping an inactive service and disabling a disabled one
// are no-ops. The systemctl invocations go through a Runner so tests can
// substitute a fake.
package systemd

// Package session holds the per-viewer server state: the set of open cube
// files, their regions and requirement subscriptions, and the session
// registry that maps session ids to live sessions.
//
// A Session is the unit of isolation. Every file id, region id, and
// requirement subscription is scoped to one session; two sessions never
// observe each other's state. Files are opened under client-chosen ids,
// while server-synthesized products (position-velocity images, moment
// maps) are allocated negative ids from dedicated ranges so they can
// never collide with client ids.
//
// Region ids are allocated per file from a monotonically increasing
// counter. An allocated id is stable for the life of the owning file and
// is never reused, even after the region is removed. The pseudo-regions
// covering the whole image and the whole cube use fixed negative ids and
// cannot be mutated or removed.
//
// Sessions can be snapshotted to a compact description of their open
// files and regions, and later restored against a fresh session. The
// snapshot carries no pixel data; restoring reopens sources by name.
package session

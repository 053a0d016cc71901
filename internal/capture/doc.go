// Package capture implements the marker-driven capture state machine: it
// discovers the camera markers rendered on the live map, visits each one by
// ordinal exactly once per cycle, classifies every visit as captured,
// unavailable or skipped, and yields the screenshots it wrote to disk.
//
// Markers are never cached across page reloads. Every visit re-resolves its
// marker by position, so a page that re-renders between visits can at worst
// make a single visit fail; it cannot make the controller act on a stale node.
package capture

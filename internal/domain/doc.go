// Package domain models towns published on a Towny dynmap marker feed.
//
// # Data Source
//
// The feed is the dynmap marker document served at
// /tiles/_markers_/marker_world.json. Towny writes one marker set
// ("towny.markerset") whose "areas" object holds one entry per claimed
// region. Each entry carries an HTML "desc" popup describing its town.
//
// # Marker Naming
//
// Area names have the form "<Town>__<suffix>":
//
//	"Astarte__0", "Astarte__1"  →  claim polygons of Astarte (primary)
//	"Astarte__home"             →  the home block of Astarte (secondary)
//
// Everything before the first "__" is the town key. A town is only
// produced when at least one primary marker exists; a lone home marker is
// ignored. The home popup, when present, is appended to the primary popup
// after a newline so labels from either block are visible to extraction.
//
// # Popup Markup
//
// Values are label-anchored:
//
//	<span style="font-weight:bold">Mayor</span>: Notch<br />
//	<span style="font-weight:bold">Bank</span>: $1,234.50<br />
//	<span style="font-weight:bold">Residents (3)</span>: Notch, jeb_, Dinnerbone<br />
//	<span style="font-weight:bold">Peaceful?</span> true<br />
//	<span style="font-weight:bold">Trusted Players</span>: jeb_</div>
//	<span style="font-size:150%">Member of Atlantis</span>
//
// Only the first occurrence of a label counts. Missing labels are not
// errors: scalar values default to "0", lists to empty, the peaceful flag to
// false and the nation membership to absent. Because "0" also feeds the
// numeric parsers, a missing bank and a bank of $0 are indistinguishable.
//
// Currency is "$" followed by a number with "," thousands separators.
// Founding dates are "Jan 2 2006" and are interpreted as midnight UTC.
//
// # Snapshots
//
// Towns are never updated in place. Every poll writes a fresh snapshot whose
// LastUpdated is stamped just before persistence; reads return the snapshot
// with the greatest LastUpdated for the lowercase town name.
package domain

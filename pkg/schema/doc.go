// Package schema describes the static configuration and state tree a device
// exposes over RCI.
//
// # Hierarchy
//
//	Schema > Group > Collection > Item > (Element | Collection)
//
// Settings and state are separate group lists. Every group is backed by a
// Collection which is either an array (instances addressed by 1-based index)
// or a dictionary (instances addressed by key), and either fixed (capacity in
// the schema) or variable (capacity discovered at runtime through the
// lock/set/unlock callbacks). A Collection holds ordered Items; an Item is a
// leaf Element or a nested Collection, called a list.
//
// # Identifiers
//
// Group ids, element ids and list ids on the wire are plain indexes into the
// ordered slices of this package. A Schema must not be modified once handed
// to an engine.
//
// # Loading
//
// Schemas are usually written in YAML and loaded with Load or Parse:
//
//	errors: [load failed]
//	settings:
//	  - name: serial
//	    kind: fixed_array
//	    instances: 2
//	    items:
//	      - {name: baud, type: uint32, access: read_write, default: "9600"}
package schema

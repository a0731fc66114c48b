// Package backend is an in-memory device configuration that serves RCI
// callbacks.
//
// A Store keeps three sources of values for every settings element: the
// current (running) value, the stored value last committed to persistent
// storage, and the schema default. Queries read the source named by the
// request and can compare it against another one; sets change the current
// values and are committed when the set command ends. State groups hold
// values published by the device through SetState.
//
// Values are addressed by path, for example
//
//	setting/serial[2]/baud
//	setting/users[alice]/fullname
//	setting/network[1]/routes[3]/dest
//
// Variable arrays and dictionaries keep their instances per collection path
// (setting/users, setting/network[1]/routes). A collection locked by one
// session makes others wait: their lock requests report busy until the
// holder releases it.
package backend

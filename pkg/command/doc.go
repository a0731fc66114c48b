// Package command builds RCI requests and decodes RCI replies. It is the
// peer side of package rci, used by controllers and tests.
//
//	req := command.New(rci.CommandQuerySetting).
//		Group(1, command.Instance{Index: 2}).
//		Query(0).
//		End().
//		Bytes()
//
//	reply, err := command.Decode(s, resp)
package command

package rci

// Callback is the configuration backend. Handle is called once per request
// (again after Busy, with the same context).
type Callback interface {
	Handle(req Request, ctx *Context) Result
}

// CallbackFunc adapts a function to the Callback interface.
type CallbackFunc func(req Request, ctx *Context) Result

// Handle calls f(req, ctx).
func (f CallbackFunc) Handle(req Request, ctx *Context) Result { return f(req, ctx) }

var _ Callback = CallbackFunc(nil)

// Rebooter restarts the device after a successful reboot command.
type Rebooter interface {
	Reboot() Result
}

// RebooterFunc adapts a function to the Rebooter interface.
type RebooterFunc func() Result

// Reboot calls f().
func (f RebooterFunc) Reboot() Result { return f() }

var _ Rebooter = RebooterFunc(nil)

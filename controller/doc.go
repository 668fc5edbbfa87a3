// Package controller provides the typed parameter container shared by
// processes and pipeline nodes.
//
// A Controller is an ordered set of named fields. Each field has a Type, a
// direction (input or output), an optional flag and free-form metadata.
// Values are checked against the field type on Set and listeners are
// notified synchronously when a value actually changes:
//
//	c := controller.New()
//	_ = c.AddField("input", controller.File)
//	_ = c.AddField("output", controller.File, controller.Output(), controller.Write())
//	sub := c.OnChange("input", func(ev controller.ChangeEvent) {
//	    fmt.Println(ev.Old, "->", ev.New)
//	})
//	defer c.OffChange(sub)
//	_ = c.Set("input", "/data/t1.nii")
//
// Unset values hold the Undefined sentinel. A Controller is not safe for
// concurrent use; callers mutate it from one goroutine.
package controller

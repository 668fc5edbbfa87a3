// Package attributes completes process paths from attributes.
//
// A Schema declares groups of editable attributes (subject, session,
// acquisition...). ProcessAttributes binds process parameters to groups
// and fixed values; once the editable values are set, Complete asks a
// PathBuilder (BIDS or BrainVISA layout) for the path of every bound path
// parameter and sets it on the process:
//
//	pa := attributes.New(proc, schema)
//	_ = pa.SetParameterAttributes("input", []string{"subject"}, map[string]any{"suffix": "T1w"})
//	_ = pa.SetValues(map[string]any{"sub": "01", "ses": "m0"})
//	_, err := attributes.Complete(pa, attributes.BIDS{Root: "/data"})
package attributes

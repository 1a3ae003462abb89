// Package ptr makes pointers to literals, for the nullable model fields.
package ptr

func String(v string) *string { return &v }
func Int(v int) *int          { return &v }

// Package ops holds the built-in operators. Nothing is registered on
// import; call RegisterBuiltins once at startup.
//
//	reg := op.Default()
//	if err := ops.RegisterBuiltins(reg); err != nil {
//	    log.Fatal(err)
//	}
package ops

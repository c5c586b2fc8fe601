package ir

// pythonMod and pythonFloorDiv are the native-Go (int32) equivalents of
// the sign-correct % and // the HDL emits as Ternary rewrites. The
// reference interpreter (package interp) and the expression tests both
// need a Go-native oracle for "what should the hardware compute",
// independent of the Verilog string the BinOp.Verilog() method builds.

// PythonMod returns a % b with the result's sign matching b's sign,
// matching Python's `%` operator.
func PythonMod(a, b int32) int32 {
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

// PythonFloorDiv returns a // b, rounding toward negative infinity,
// matching Python's `//` operator.
func PythonFloorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

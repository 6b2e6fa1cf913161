package controller

// PIController is a direct-form-I first order IIR on the tracking error:
//
//	u[n] = b0*e[n] + b1*e[n-1] - a1*u[n-1]
//
// With a1 = -1 this is a discrete PI regulator.
type PIController struct {
	B0, B1, A1 float32

	Error      float32
	ErrorPrev  float32
	Output     float32
	OutputPrev float32
}

// Init zeroes the history. Coefficients are kept.
func (p *PIController) Init() {
	p.Error = 0
	p.ErrorPrev = 0
	p.Output = 0
	p.OutputPrev = 0
}

// Reset is Init.
func (p *PIController) Reset() {
	p.Init()
}

// Compute advances the filter by one step and returns the unclamped output.
func (p *PIController) Compute(setpoint, measured float32) float32 {
	p.Error = setpoint - measured
	p.Output = p.B0*p.Error + p.B1*p.ErrorPrev - p.A1*p.OutputPrev

	p.ErrorPrev = p.Error
	p.OutputPrev = p.Output

	return p.Output
}

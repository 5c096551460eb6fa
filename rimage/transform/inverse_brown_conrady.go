package transform

// Undistort applies the inverse of the Brown-Conrady distortion model.
// Given a distorted point in normalized image coordinates, it computes the corresponding undistorted
// point with Newton-Raphson on the forward model, using a central difference Jacobian.
func (bc *BrownConrady) Undistort(xd, yd float64) (float64, float64) {
	if bc.IsZero() {
		return xd, yd
	}

	// Start with the distorted point as initial guess
	xu, yu := xd, yd

	const maxIterations = 20
	const tolerance = 1e-12
	const h = 1e-7

	for i := 0; i < maxIterations; i++ {
		xdEst, ydEst := bc.Transform(xu, yu)
		errX := xdEst - xd
		errY := ydEst - yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}

		// J = [[dxd/dxu, dxd/dyu], [dyd/dxu, dyd/dyu]]
		xp, yp := bc.Transform(xu+h, yu)
		xm, ym := bc.Transform(xu-h, yu)
		dxdDxu, dydDxu := (xp-xm)/(2*h), (yp-ym)/(2*h)
		xp, yp = bc.Transform(xu, yu+h)
		xm, ym = bc.Transform(xu, yu-h)
		dxdDyu, dydDyu := (xp-xm)/(2*h), (yp-ym)/(2*h)

		det := dxdDxu*dydDyu - dxdDyu*dydDxu
		if det == 0 {
			break
		}

		// Update: [xu, yu] -= J^-1 * [errX, errY]
		xu -= (dydDyu*errX - dxdDyu*errY) / det
		yu -= (-dydDxu*errX + dxdDxu*errY) / det
	}

	return xu, yu
}

// UndistortPixel maps a distorted pixel to where it would land under a distortion free camera
// with the same camera matrix.
func (params *PinholeCameraModel) UndistortPixel(u, v float64) (float64, float64) {
	bc, ok := params.Distortion.(*BrownConrady)
	if !ok || bc.IsZero() {
		return u, v
	}
	x := (u - params.Ppx) / params.Fx
	y := (v - params.Ppy) / params.Fy
	x, y = bc.Undistort(x, y)
	return x*params.Fx + params.Ppx, y*params.Fy + params.Ppy
}

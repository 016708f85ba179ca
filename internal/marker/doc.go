// Package marker decodes fiducial marker payloads and reduces detected
// marker outlines to the quadrilateral used for scale measurements.
//
// A marker payload is the ASCII text "side_cm,ref_x_m,ref_y_m" written by
// the marker generator. The side length is the printed edge of the marker
// in centimetres; the reference coordinates locate the marker on the
// ground in metres.
package marker

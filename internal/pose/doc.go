// Package pose turns a measured marker outline into a camera position.
//
// Distances are derived from the apparent marker size: the marker's known
// side length turns the frame height into centimetres, and the vertical
// field of view turns that height into a distance from the lens. The
// lateral offset is the marker centroid's displacement from the frame
// centre, scaled the same way and added to the marker's reference
// position.
package pose

// Package camera provides the host-side camera capture path. A Decoder runs an
// external barcode decoder (zbarcam by default) against a V4L2 device and
// streams each decoded string to the scanning surface.
package camera

// Package image implements the scale, compress and decompress capabilities
// for raw RGB images (three bytes per pixel, row-major).
//
// Register binds all three task types to a dispatch.Registry:
//
//	reg := dispatch.NewRegistry()
//	if err := image.Register(reg, image.Config{Logger: logger}); err != nil {
//		return err
//	}
//
// Parameters:
//
//	scale       data []byte, width int, height int, scale float
//	compress    data []byte, width int, height int, [algorithm string]
//	decompress  data []byte, width int, height int, [algorithm string]
//
// Algorithms are gzip (default), zlib and flate. All three capabilities
// watch the context deadline and report TIMEOUT when it passes.
package image

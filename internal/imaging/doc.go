// Package imaging provides the raster operations the document pipeline
// performs in-process: decoding page renders and user images, painting
// redaction boxes, parsing fill colours, resizing and re-encoding.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, (x1,y1) is inclusive (top-left), (x2,y2) is exclusive (bottom-right)
//
// Callers convert PDF points to pixels with PointsToPixels before masking.
//
// # Supported Formats
//
// Decoding covers PNG, JPEG, GIF, TIFF, BMP and WebP. Encoding covers PNG,
// JPEG, GIF, TIFF and BMP. PDF composition only embeds PNG and JPEG, so
// ForPDF re-encodes anything else to PNG.
//
// # Thread Safety
//
// Operations are stateless and may be called concurrently on different
// images. Mask returns a copy and never mutates its input.
package imaging

// Package hash provides the CRC32-Castagnoli checksum used by checkpoint
// manifests and by S3 uploads.
package hash

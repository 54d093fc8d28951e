// Package media stores generated audio and image artifacts and serves them back.
//
// Artifacts live under <kind>/<device_id>/<random>.<ext> in a FileStore
// (local directory or S3 bucket) and are served read-only at
// /assets/<kind>/<device_id>/<random>.<ext>.
package media

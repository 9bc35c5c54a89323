// Package compress implements transparent value compression with the s2
// codec. Values below the configured threshold are stored raw since the
// envelope overhead would outweigh the saving.
package compress

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Format is an archive container plus compression, named by its file
// extension.
type Format string

const (
	FormatTarGzip Format = "tar.gz"
	FormatTarXz   Format = "tar.xz"
	FormatTarZstd Format = "tar.zst"
	FormatTarLZ4  Format = "tar.lz4"
	FormatZip     Format = "zip"
)

// zstdLevel matches what release tarballs have always been
// compressed with (ZSTD_CLEVEL=19).
const zstdLevel = 19

// ParseFormat parses a format name.
func ParseFormat(name string) (Format, error) {
	switch format := Format(name); format {
	case FormatTarGzip, FormatTarXz, FormatTarZstd, FormatTarLZ4, FormatZip:
		return format, nil
	default:
		return "", fmt.Errorf("unknown archive format: %q", name)
	}
}

// FileName is the archive file name for base in this format.
func (f Format) FileName(base string) string {
	return base + "." + string(f)
}

// compressor wraps w in the stream compressor of a tar format.
func (f Format) compressor(w io.Writer) (io.WriteCloser, error) {
	switch f {
	case FormatTarGzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case FormatTarXz:
		return xz.NewWriter(w)
	case FormatTarZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(zstdLevel)))
	case FormatTarLZ4:
		writer := lz4.NewWriter(w)
		if err := writer.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, err
		}
		return writer, nil
	default:
		return nil, fmt.Errorf("%s is not a tar format", f)
	}
}

// decompressor is the reading side of compressor.
func (f Format) decompressor(r io.Reader) (io.Reader, error) {
	switch f {
	case FormatTarGzip:
		return gzip.NewReader(r)
	case FormatTarXz:
		return xz.NewReader(r)
	case FormatTarZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return decoder.IOReadCloser(), nil
	case FormatTarLZ4:
		return lz4.NewReader(r), nil
	default:
		return nil, fmt.Errorf("%s is not a tar format", f)
	}
}

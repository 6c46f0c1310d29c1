package compressor

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	kgzip "github.com/klauspost/compress/gzip"
	. "github.com/smartystreets/goconvey/convey"
)

const sampleDump = "-- sitekeep dump\nSET NAMES utf8mb4;\nINSERT INTO `wp_options` VALUES (1,'siteurl','https://example.test','yes');\n"

func TestGzipCompressor(t *testing.T) {
	Convey("Given a gzip compressor", t, func() {
		dir := t.TempDir()
		c := NewGzip()

		Convey("Compress turns a raw tool dump into a standard gzip file", func() {
			raw := filepath.Join(dir, "db.sql.raw")
			out := filepath.Join(dir, "db.sql.gz")
			So(os.WriteFile(raw, []byte(sampleDump), 0644), ShouldBeNil)

			So(c.Compress(raw, out), ShouldBeNil)

			f, err := os.Open(out)
			So(err, ShouldBeNil)
			defer f.Close()

			r, err := gzip.NewReader(f)
			So(err, ShouldBeNil)
			got, err := io.ReadAll(r)
			So(err, ShouldBeNil)
			So(string(got), ShouldEqual, sampleDump)
		})

		Convey("Compress reports a missing raw dump", func() {
			err := c.Compress(filepath.Join(dir, "missing.raw"), filepath.Join(dir, "db.sql.gz"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to open source file")
		})

		Convey("Compress reports an unwritable destination", func() {
			raw := filepath.Join(dir, "db.sql.raw")
			So(os.WriteFile(raw, []byte(sampleDump), 0644), ShouldBeNil)

			err := c.Compress(raw, filepath.Join(dir, "no", "such", "db.sql.gz"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to create dest file")
		})

		Convey("Streams written at any valid level read back through NewReader", func() {
			for _, level := range []int{kgzip.BestSpeed, kgzip.DefaultCompression, kgzip.BestCompression} {
				var buf bytes.Buffer
				w, err := NewGzipLevel(level).NewWriter(&buf)
				So(err, ShouldBeNil)
				_, err = io.WriteString(w, sampleDump)
				So(err, ShouldBeNil)
				So(w.Close(), ShouldBeNil)

				r, err := c.NewReader(&buf)
				So(err, ShouldBeNil)
				got, err := io.ReadAll(r)
				So(err, ShouldBeNil)
				So(r.Close(), ShouldBeNil)
				So(string(got), ShouldEqual, sampleDump)
			}
		})

		Convey("NewWriter rejects an invalid level", func() {
			_, err := NewGzipLevel(42).NewWriter(io.Discard)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to create gzip writer")
		})

		Convey("NewReader rejects data that is not gzip", func() {
			_, err := c.NewReader(strings.NewReader("plain text dump"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to create gzip reader")
		})

		Convey("A truncated stream fails when read to the end", func() {
			var buf bytes.Buffer
			w, err := c.NewWriter(&buf)
			So(err, ShouldBeNil)
			_, err = io.WriteString(w, strings.Repeat(sampleDump, 50))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			truncated := buf.Bytes()[:buf.Len()-6]
			r, err := c.NewReader(bytes.NewReader(truncated))
			So(err, ShouldBeNil)
			_, err = io.Copy(io.Discard, r)
			So(err, ShouldNotBeNil)
		})
	})
}

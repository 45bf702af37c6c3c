package counts

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/ngstk/pipeline"
	gzip "github.com/klauspost/pgzip"
)

func nativeCount(ctx context.Context, path string, gzipped bool) (string, error) {
	n, err := countNewlines(ctx, path, gzipped)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

// countNewlines counts '\n' bytes the way "wc -l" does: a final line
// without a terminating newline is not counted.
//
// The count stops with an errors.Timeout or errors.Canceled error once ctx is
// done.
func countNewlines(ctx context.Context, path string, gzipped bool) (n int64, err error) {
	if ctx.Err() != nil {
		return 0, pipeline.ContextErr(ctx, path)
	}
	in, err := file.Open(ctx, path)
	if err != nil {
		return 0, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if gzipped {
		gz, gzErr := gzip.NewReader(r)
		if gzErr != nil {
			return 0, errors.E(errors.Invalid, path, gzErr)
		}
		defer gz.Close()
		r = gz
	}
	buf := make([]byte, 256<<10)
	for {
		if ctx.Err() != nil {
			return n, pipeline.ContextErr(ctx, path)
		}
		c, readErr := r.Read(buf)
		n += int64(bytes.Count(buf[:c], []byte{'\n'}))
		if readErr == io.EOF {
			return n, nil
		}
		if readErr != nil {
			return n, errors.E(path, readErr)
		}
	}
}

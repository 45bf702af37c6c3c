package inspection

import (
	"context"
	"os"
	"strings"

	gerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

const bytesPerGB = 1 << 30

// SizeOpts controls TotalSizeGB.
type SizeOpts struct {
	// Strict makes a path that cannot be stat'ed an error. By default it
	// contributes zero.
	Strict bool
}

// TotalSizeGB returns the total size of the files, in gigabytes (2^30
// bytes). Each element of paths is one path or a whitespace-separated list of
// paths. Paths may use any scheme registered with grailbio/base/file.
//
// A path that does not exist, or cannot be stat'ed for any other reason,
// adds nothing to the total unless SizeOpts.Strict is set.
func TotalSizeGB(ctx context.Context, paths []string, opts ...SizeOpts) (float64, error) {
	strict := false
	for _, o := range opts {
		strict = strict || o.Strict
	}
	var total int64
	for _, group := range paths {
		for _, path := range strings.Fields(group) {
			info, err := file.Stat(ctx, path)
			if err != nil {
				if strict {
					return 0, errors.Wrapf(err, "size of %s", path)
				}
				if isNotExist(err) {
					log.Debug.Printf("TotalSizeGB: %s does not exist, counting it as 0", path)
				} else {
					log.Error.Printf("TotalSizeGB: stat %s: %v; counting it as 0", path, err)
				}
				continue
			}
			total += info.Size()
		}
	}
	return float64(total) / bytesPerGB, nil
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || gerrors.Is(gerrors.NotExist, err)
}

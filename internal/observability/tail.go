package observability

import (
	"context"
	"fmt"
	"io"

	"github.com/hpcloud/tail"
)

// TailLogFile copies the log file at path to out. With follow set it keeps
// streaming appended lines, across rotations, until ctx is cancelled.
func TailLogFile(ctx context.Context, path string, follow bool, out io.Writer) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	defer t.Cleanup()
	defer func() { _ = t.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return fmt.Errorf("error reading log file: %w", line.Err)
			}
			if _, err := fmt.Fprintln(out, line.Text); err != nil {
				return err
			}
		}
	}
}

package cycle

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// WaitForEnter prints a prompt to w and blocks until a line is read from r,
// r reaches EOF, or ctx is done.
func WaitForEnter(ctx context.Context, r io.Reader, w io.Writer) error {
	if _, err := fmt.Fprintln(w, "Press Enter to start fetching rules..."); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(r).ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

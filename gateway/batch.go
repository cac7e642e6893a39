package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/arloliu/go-coshell/command"
	"github.com/arloliu/go-coshell/internal/pool"
)

// RunBatch executes the commands of the file at path in order, pausing for the settle delay
// after each one. Blank lines and '#' comments are skipped; malformed lines and failed commands
// are logged and the run goes on. Replies are logged.
func (g *Gateway) RunBatch(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	l := g.logger.With("batch", path)
	s, err := g.NewSession(ctx, &logReplier{logger: l})
	if err != nil {
		return err
	}
	defer s.Close()

	l.Info("batch started")
	count, err := g.runBatch(ctx, s, f)
	l.Info("batch finished", "commands", count)

	return err
}

func (g *Gateway) runBatch(ctx context.Context, s *Session, r io.Reader) (int, error) {
	count := 0
	lineNo := 0
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		lineNo++
		line := command.TrimBatchLine(scanner.Text())
		if command.IsSkippable(line) {
			continue
		}

		cmd, err := command.Parse(line)
		if err != nil {
			g.metrics.incMalformedCount()
			s.logger.Warn("skip malformed batch line", "line", lineNo, "error", err)

			continue
		}

		count++
		err = g.Dispatch(ctx, s, cmd)
		switch {
		case errors.Is(err, ErrQuit):
			s.logger.Warn("quit ignored in batch file", "line", lineNo)
		case err != nil:
			if ctx.Err() != nil {
				return count, ctx.Err()
			}
			s.logger.Error("batch command failed", "line", lineNo, "command", cmd.String(), "error", err)
		}

		if err := pool.Sleep(ctx, g.cfg.SettleDelay()); err != nil {
			return count, err
		}
	}

	return count, scanner.Err()
}
